// Package model はドメインモデルを定義する。
package model

import "time"

// Announcement は教習所からのお知らせ記事を表す。
// RSS/Atomフィードから取得され、Contentはサニタイズ済みHTML。
type Announcement struct {
	GuidOrID    string
	Title       string
	Link        string
	Content     string // サニタイズ済みHTML
	Summary     string // サニタイズ済み
	PublishedAt *time.Time
	FetchedAt   time.Time
}
