package model

import "time"

// Category は記事カテゴリを表す。
type Category string

const (
	CategoryAll           Category = "all"
	CategoryGeneral       Category = "general"
	CategoryBusiness      Category = "business"
	CategoryEntertainment Category = "entertainment"
	CategoryHealth        Category = "health"
	CategoryScience       Category = "science"
	CategorySports        Category = "sports"
	CategoryTechnology    Category = "technology"
)

// Categories は既知のカテゴリ一覧。表示順を兼ねる。
// CategoryAll はフィルタ用の疑似カテゴリのため含まない。
var Categories = []Category{
	CategoryGeneral,
	CategoryBusiness,
	CategoryEntertainment,
	CategoryHealth,
	CategoryScience,
	CategorySports,
	CategoryTechnology,
}

// categoryLabels はカテゴリの表示名。
var categoryLabels = map[Category]string{
	CategoryGeneral:       "General",
	CategoryBusiness:      "Business",
	CategoryEntertainment: "Entertainment",
	CategoryHealth:        "Health",
	CategoryScience:       "Science",
	CategorySports:        "Sports",
	CategoryTechnology:    "Technology",
}

// Label はカテゴリの表示名を返す。
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// IsKnown は既知のカテゴリ（allを除く）かどうかを返す。
func (c Category) IsKnown() bool {
	_, ok := categoryLabels[c]
	return ok
}

// IsFilterAll は絞り込みなしを表すかどうかを返す。空文字列もallとして扱う。
func (c Category) IsFilterAll() bool {
	return c == "" || c == CategoryAll
}

// Countries はインジェスト時に指定可能な国コード。
// 記事テーブルには国の列が無いため、読み取り時のフィルタには使用しない。
var Countries = []string{"us", "gb", "ca", "au", "de", "fr", "jp", "in"}

// IsKnownCountry は国コードが既知かどうかを返す。
func IsKnownCountry(country string) bool {
	for _, c := range Countries {
		if c == country {
			return true
		}
	}
	return false
}

// Article はプロバイダーから取り込んだ記事を表す。
type Article struct {
	ID          int64
	Title       string
	Summary     string
	Content     string
	URL         string
	ImageURL    string
	PublishedAt time.Time
	SourceName  string
	SourceID    string
	Author      string
	Category    Category
	Views       int
	Likes       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArticleView は記事ごとの閲覧数を表す。記事と1対1。
type ArticleView struct {
	ArticleID  int64
	ViewCount  int
	LastViewed time.Time
}

// ProviderArticle はプロバイダー（News API / RSS）から取得した未保存の記事データを表す。
// 正規化の前段階であり、必須項目が欠けている場合がある。
type ProviderArticle struct {
	Title       string
	Description string
	Content     string
	URL         string
	ImageURL    string
	PublishedAt string // RFC3339。空または解析不能な場合は取り込み時刻を使う
	Author      string
	SourceID    string
	SourceName  string
}

// CategoryCount はカテゴリ別の記事数を表す。
type CategoryCount struct {
	Category Category
	Count    int
}

// Stats は記事の集計値を表す。
type Stats struct {
	TotalArticles  int
	RecentArticles int // 直近24時間に公開された記事数
	TotalViews     int
	ByCategory     []CategoryCount
}
