package fetcher

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// mockMetrics はメトリクス記録を捕捉するモック。
type mockMetrics struct {
	statuses  []int
	latencies int
}

func (m *mockMetrics) RecordIngestSuccess()             {}
func (m *mockMetrics) RecordIngestFailure(string)       {}
func (m *mockMetrics) RecordArticlesStored(int)         {}
func (m *mockMetrics) RecordHTTPStatus(code int)        { m.statuses = append(m.statuses, code) }
func (m *mockMetrics) RecordFetchLatency(time.Duration) { m.latencies++ }
func (m *mockMetrics) RecordViewTracked()               {}
func (m *mockMetrics) RecordLogin(string)               {}
func (m *mockMetrics) RecordPurged(string, int64)       {}

func TestFetch_Success(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	mm := &mockMetrics{}
	c := New(Options{}, mm, newTestLogger())

	res := c.Fetch(context.Background(), ts.URL)
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if string(res.Body) != `{"status":"ok"}` {
		t.Errorf("Body = %q", res.Body)
	}
	if gotUA != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, DefaultUserAgent)
	}
	if len(mm.statuses) != 1 || mm.statuses[0] != 200 || mm.latencies != 1 {
		t.Errorf("metrics = %+v", mm)
	}
}

// TestFetch_Non2xxIsTransportSuccess は2xx以外でも本文を受信できれば通信成功とすることを検証する。
func TestFetch_Non2xxIsTransportSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`))
	}))
	defer ts.Close()

	res := New(Options{}, nil, newTestLogger()).Fetch(context.Background(), ts.URL)
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", res.StatusCode)
	}
	if !bytes.Contains(res.Body, []byte("apiKeyInvalid")) {
		t.Errorf("Body = %q", res.Body)
	}
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	res := New(Options{}, nil, newTestLogger()).Fetch(context.Background(), ts.URL+"/old")
	if !res.Success || string(res.Body) != "moved" {
		t.Errorf("result = %+v", res)
	}
}

func TestFetch_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer ts.Close()

	res := New(Options{Timeout: 50 * time.Millisecond}, nil, newTestLogger()).Fetch(context.Background(), ts.URL)
	if res.Success {
		t.Fatal("Success = true, want false on timeout")
	}
	if res.Error == "" {
		t.Error("Error should describe the timeout")
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", res.StatusCode)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	res := New(Options{}, nil, newTestLogger()).Fetch(context.Background(), url)
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error == "" {
		t.Error("Error should not be empty")
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	res := New(Options{}, nil, newTestLogger()).Fetch(context.Background(), "://bad")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if !strings.Contains(res.Error, "invalid request") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestFetch_BodyTooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 2048))
	}))
	defer ts.Close()

	res := New(Options{MaxBodySize: 1024}, nil, newTestLogger()).Fetch(context.Background(), ts.URL)
	if res.Success {
		t.Fatal("Success = true, want false for oversized body")
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if res.Error != ErrBodyTooLarge.Error() {
		t.Errorf("Error = %q, want %q", res.Error, ErrBodyTooLarge.Error())
	}
}

func TestFetch_CustomUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	New(Options{UserAgent: "Custom/2.0"}, nil, newTestLogger()).Fetch(context.Background(), ts.URL)
	if gotUA != "Custom/2.0" {
		t.Errorf("User-Agent = %q, want Custom/2.0", gotUA)
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.Timeout != DefaultTimeout || o.ConnectTimeout != DefaultConnectTimeout ||
		o.MaxBodySize != DefaultMaxBodySize || o.UserAgent != DefaultUserAgent {
		t.Errorf("withDefaults() = %+v", o)
	}
}

func TestNewWithHTTPClient_FillsTimeouts(t *testing.T) {
	hc := &http.Client{Transport: &http.Transport{}}
	NewWithHTTPClient(hc, Options{}, nil, newTestLogger())

	if hc.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", hc.Timeout, DefaultTimeout)
	}
	if tr := hc.Transport.(*http.Transport); tr.TLSHandshakeTimeout != DefaultConnectTimeout {
		t.Errorf("TLSHandshakeTimeout = %v, want %v", tr.TLSHandshakeTimeout, DefaultConnectTimeout)
	}
}

func TestRedactQuery(t *testing.T) {
	got := redactQuery("https://newsapi.org/v2/top-headlines?country=us&apiKey=secret")
	if strings.Contains(got, "secret") {
		t.Errorf("redactQuery() leaked the key: %s", got)
	}
	if !strings.Contains(got, "country=us") {
		t.Errorf("redactQuery() dropped other params: %s", got)
	}
}

func TestFetch_ErrorDoesNotLeakURL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL + "/v2/everything?apiKey=topsecret"
	ts.Close()

	res := New(Options{}, nil, newTestLogger()).Fetch(context.Background(), url)
	if strings.Contains(res.Error, "topsecret") {
		t.Errorf("Error leaked the API key: %q", res.Error)
	}
}
