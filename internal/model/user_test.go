package model

import (
	"testing"
	"time"
)

// TestUser_FullName はフルネームが常にFirstName/LastNameから導出されることを検証する。
func TestUser_FullName(t *testing.T) {
	u := &User{FirstName: "Hanako", LastName: "Yamada"}
	if got := u.FullName(); got != "Hanako Yamada" {
		t.Errorf("FullName() = %q, want %q", got, "Hanako Yamada")
	}

	// 名前を更新すると導出結果も追従する（独立した状態を持たない）
	u.FirstName = "Taro"
	if got := u.FullName(); got != "Taro Yamada" {
		t.Errorf("FullName() after update = %q, want %q", got, "Taro Yamada")
	}
}

// TestCredentialSession_Valid はセッション有効性判定を検証する。
func TestCredentialSession_Valid(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session *CredentialSession
		want    bool
	}{
		{"nilセッション", nil, false},
		{"トークン空", &CredentialSession{Token: "", ExpiresAt: now.Add(time.Hour)}, false},
		{"期限内", &CredentialSession{Token: "tok", ExpiresAt: now.Add(time.Hour)}, true},
		{"期限切れ", &CredentialSession{Token: "tok", ExpiresAt: now.Add(-time.Minute)}, false},
		{"ちょうど期限時刻", &CredentialSession{Token: "tok", ExpiresAt: now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
