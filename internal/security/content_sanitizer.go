// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ArticleSanitizer はプロバイダーから取り込んだ記事テキストを保存前に無害化する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 本文には安全なタグのみを残し、要約とタイトルはプレーンテキストにする。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は記事テキストのサニタイズ機能のインターフェースを定義する。
type Sanitizer interface {
	// SanitizeContent は記事本文のHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img）のみを通過させる。
	// imgタグのsrc属性はhttpsスキームのみ許可される。
	// 同一入力に対して常に同一出力を返す。
	SanitizeContent(rawHTML string) string

	// PlainText は全てのタグを除去し、エンティティを復元して空白を詰めたテキストを返す。
	// 要約・タイトルの保存に使用する。
	PlainText(rawHTML string) string
}

// articleSanitizer はSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなため、インスタンスを共有できる。
type articleSanitizer struct {
	content *bluemonday.Policy
	strict  *bluemonday.Policy
}

// NewArticleSanitizer はSanitizerの新しいインスタンスを生成する。
func NewArticleSanitizer() *articleSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style等は許可リストに含めないことで除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &articleSanitizer{
		content: p,
		strict:  bluemonday.StrictPolicy(),
	}
}

// SanitizeContent は記事本文のHTMLをサニタイズする。
func (s *articleSanitizer) SanitizeContent(rawHTML string) string {
	return strings.TrimSpace(s.content.Sanitize(rawHTML))
}

// PlainText はHTMLをプレーンテキストに変換する。
func (s *articleSanitizer) PlainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	text := html.UnescapeString(s.strict.Sanitize(rawHTML))
	return strings.Join(strings.Fields(text), " ")
}

var _ Sanitizer = (*articleSanitizer)(nil)
