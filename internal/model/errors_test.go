package model

import (
	"errors"
	"fmt"
	"testing"
)

// TestIsAuthenticationError は認証エラー判定を検証する。
// 401/403応答のエラーとローカルセッション切れの両方が認証エラーとして扱われる。
func TestIsAuthenticationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"401応答", NewAuthenticationError(401), true},
		{"403応答", NewAuthenticationError(403), true},
		{"ローカルセッション切れ", NewSessionExpiredError(), true},
		{"ラップされた認証エラー", fmt.Errorf("fetch failed: %w", NewAuthenticationError(401)), true},
		{"404エラー", NewNotFoundError(), false},
		{"サーバーエラー", NewServerError(500), false},
		{"タイムアウト", NewTimeoutError(), false},
		{"非APIError", errors.New("plain error"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthenticationError(tt.err); got != tt.want {
				t.Errorf("IsAuthenticationError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestIsNotFoundError は404エラー判定を検証する。
func TestIsNotFoundError(t *testing.T) {
	if !IsNotFoundError(NewNotFoundError()) {
		t.Error("NewNotFoundError should be a not-found error")
	}
	if !IsNotFoundError(NewSessionNotFoundError("s1")) {
		t.Error("NewSessionNotFoundError should be a not-found error")
	}
	if !IsNotFoundError(fmt.Errorf("cancel failed: %w", NewNotFoundError())) {
		t.Error("wrapped not-found error should be detected")
	}
	if IsNotFoundError(NewServerError(503)) {
		t.Error("server error should not be a not-found error")
	}
}

// TestIsTimeoutError はタイムアウトエラー判定を検証する。
func TestIsTimeoutError(t *testing.T) {
	if !IsTimeoutError(NewTimeoutError()) {
		t.Error("NewTimeoutError should be a timeout error")
	}
	if IsTimeoutError(NewAuthenticationError(401)) {
		t.Error("auth error should not be a timeout error")
	}
}

// TestIsServerError は5xxエラー判定を検証する。
func TestIsServerError(t *testing.T) {
	if !IsServerError(NewServerError(502)) {
		t.Error("NewServerError should be a server error")
	}
	if IsServerError(NewNotFoundError()) {
		t.Error("not-found error should not be a server error")
	}
}

// TestAPIError_Error はエラー文字列のフォーマットを検証する。
func TestAPIError_Error(t *testing.T) {
	err := NewAuthenticationError(401)
	want := "[AUTH_FAILED] 認証に失敗しました（401）"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

// TestUserMessage はUI表示用メッセージの取り出しを検証する。
func TestUserMessage(t *testing.T) {
	apiErr := NewServerError(500)
	if got := UserMessage(apiErr); got != apiErr.Message {
		t.Errorf("UserMessage(APIError) = %q, want %q", got, apiErr.Message)
	}

	wrapped := fmt.Errorf("request failed: %w", apiErr)
	if got := UserMessage(wrapped); got != apiErr.Message {
		t.Errorf("UserMessage(wrapped) = %q, want %q", got, apiErr.Message)
	}

	plain := errors.New("dial tcp: connection refused")
	if got := UserMessage(plain); got != "通信に失敗しました。再度お試しください。" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}

// TestNewRequestFailedError はサーバーメッセージの伝搬を検証する。
func TestNewRequestFailedError(t *testing.T) {
	err := NewRequestFailedError(422, "HTTP 422: Unprocessable Entity")
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Message != "HTTP 422: Unprocessable Entity" {
		t.Errorf("Message = %q", err.Message)
	}
}
