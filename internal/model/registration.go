// Package model はドメインモデルを定義する。
package model

import "time"

// Registration はユーザーのセッション予約を表す。
// 登録操作で作成され、キャンセル操作で台帳から除去される。
// Sessionフィールドはバックエンドが外部キーのみを返した場合はnilとなり、
// 台帳側でセッションカタログから遅延補完（ハイドレーション）される。
type Registration struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	PaymentStatus string    `json:"payment_status"`
	Score         *int      `json:"score,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Session       *Session  `json:"session,omitempty"`
}

// PaymentStatus の既知の値。
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)
