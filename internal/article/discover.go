package article

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
)

// feedLink はHTMLのheadから検出されたフィードリンク。
type feedLink struct {
	URL  string
	Atom bool
}

// isFeedDocument はボディがRSS/Atom/JSON Feedとして解析可能な形式かを判定する。
func isFeedDocument(body []byte) bool {
	return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
}

// feedLinksFromHTML はhead部分の rel="alternate" なRSS/Atomリンクを抽出する。
// headタグが省略されていても、bodyより前に現れたlinkはhead部分として扱う。
// 相対URLはpageURLを基準に解決する。
func feedLinksFromHTML(body []byte, pageURL string) []feedLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			switch string(name) {
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !hasAttr {
				continue
			}

			var rel, typ, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					typ = strings.ToLower(string(val))
				case "href":
					href = strings.TrimSpace(string(val))
				}
				if !more {
					break
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}
			if typ != "application/rss+xml" && typ != "application/atom+xml" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				URL:  base.ResolveReference(ref).String(),
				Atom: typ == "application/atom+xml",
			})

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "head" {
				return links
			}
		}
	}
}

// selectFeedLink は候補から取り込むフィードを選ぶ。
// 同一ホストを最優先し、次にAtom、同点なら先頭を選ぶ。候補が無ければ空文字列を返す。
func selectFeedLink(links []feedLink, pageURL string) string {
	if len(links) == 0 {
		return ""
	}
	pageHost := hostOf(pageURL)

	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].URL
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
