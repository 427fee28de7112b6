// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// バックエンドのフィールド名はfirstName/lastNameのキャメルケースと
// created_atのスネークケースが混在しているため、タグで忠実に対応させる。
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FirstName        string    `json:"firstName"`
	LastName         string    `json:"lastName"`
	CreatedAt        time.Time `json:"created_at"`
	Phone            string    `json:"phone,omitempty"`
	Age              string    `json:"age,omitempty"`
	TransmissionType int       `json:"transmissionType"` // 0: AT, 1: MT
}

// FullName は表示用のフルネームを返す。
// FirstName/LastNameから常に導出され、独立した状態として保持しない。
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// SignupRequest はサインアップエンドポイントへのリクエストボディ。
type SignupRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Phone            string `json:"phone,omitempty"`
	Age              string `json:"age,omitempty"`
	TransmissionType int    `json:"transmissionType"`
}
