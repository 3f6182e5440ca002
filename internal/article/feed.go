package article

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/newshub/internal/model"
)

// ImportFeed はRSS/Atomフィードを取得し、記事として保存する。
// 保存処理はFetchAndStoreと共通で、URLの重複は無視される。
func (s *Service) ImportFeed(ctx context.Context, feedURL string, category model.Category) IngestResult {
	feedURL = strings.TrimSpace(feedURL)
	if err := validateIngest(category, ""); err != nil {
		return s.fail(err)
	}
	if err := s.guard.ValidateURL(feedURL); err != nil {
		return s.fail(model.NewInvalidURLError(err.Error()))
	}

	body, err := s.fetchFeed(ctx, feedURL)
	if err != nil {
		return s.fail(err)
	}

	// HTMLページが指定された場合はheadのフィードリンクを1回だけ辿る
	if !isFeedDocument(body) {
		if link := selectFeedLink(feedLinksFromHTML(body, feedURL), feedURL); link != "" {
			if err := s.guard.ValidateURL(link); err != nil {
				return s.fail(model.NewInvalidURLError(err.Error()))
			}
			s.logger.Info("HTMLページからフィードを検出しました",
				slog.String("page_url", feedURL),
				slog.String("feed_url", link),
			)
			feedURL = link
			if body, err = s.fetchFeed(ctx, feedURL); err != nil {
				return s.fail(err)
			}
		}
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return s.fail(model.NewParseFailedError(err.Error()))
	}

	records := convertFeedItems(parsed)
	stored := s.storeAll(ctx, records, storedCategory(category))
	s.metrics.RecordIngestSuccess()
	s.metrics.RecordArticlesStored(stored)

	s.logger.Info("フィードの取り込みが完了しました",
		slog.String("feed_url", feedURL),
		slog.String("feed_title", parsed.Title),
		slog.Int("items", len(parsed.Items)),
		slog.Int("stored", stored),
	)

	return IngestResult{
		Success:       true,
		TotalReported: len(parsed.Items),
		StoredCount:   stored,
		Message:       fmt.Sprintf("Successfully fetched and stored %d articles", stored),
	}
}

// fetchFeed はURLを取得し、2xx応答のボディを返す。
func (s *Service) fetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	res := s.feeds.Fetch(ctx, feedURL)
	if !res.Success {
		return nil, model.NewFetchFailedError(res.Error, res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, model.NewFetchFailedError("unexpected status", res.StatusCode)
	}
	return res.Body, nil
}

// convertFeedItems はgofeedの記事をプロバイダー記事に変換する。
// リンクが無い場合はhttp(s)形式のGUIDで代用する。
func convertFeedItems(feed *gofeed.Feed) []model.ProviderArticle {
	records := make([]model.ProviderArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		link := item.Link
		if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			link = item.GUID
		}

		var published string
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC().Format(time.RFC3339)
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC().Format(time.RFC3339)
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			author = item.Authors[0].Name
		}

		records = append(records, model.ProviderArticle{
			Title:       item.Title,
			Description: item.Description,
			Content:     item.Content,
			URL:         link,
			ImageURL:    itemImage(item),
			PublishedAt: published,
			Author:      author,
			SourceName:  feed.Title,
		})
	}
	return records
}

// itemImage は記事の画像URLを、item画像・画像エンクロージャ・本文中の最初のimgの順に探す。
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	if src := firstImageSrc(item.Content); src != "" {
		return src
	}
	return firstImageSrc(item.Description)
}

// firstImageSrc はHTML断片中の最初のimgタグのsrc属性を返す。
func firstImageSrc(fragment string) string {
	if !strings.Contains(strings.ToLower(fragment), "<img") {
		return ""
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "img" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "src" {
					return strings.TrimSpace(string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}
