package model

import "time"

// Source はプロバイダーが提供するニュースソースを表す。
// IDはプロバイダーが割り当てた文字列キー。
type Source struct {
	ID          string
	Name        string
	Description string
	URL         string
	Category    string
	Language    string
	Country     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
