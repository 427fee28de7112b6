// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, network, server
	Action   string // ユーザー向け対処方法
	Status   int    // HTTPステータスコード（該当しない場合は0）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeSessionExpired  = "SESSION_EXPIRED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeServerError     = "SERVER_ERROR"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeRequestFailed   = "REQUEST_FAILED"
	ErrCodeValidation      = "VALIDATION_FAILED"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
)

// NewAuthenticationError は認証失敗エラーを生成する。
// 401/403応答を受けた場合に使用し、メッセージにステータスコードを含める。
func NewAuthenticationError(status int) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  fmt.Sprintf("認証に失敗しました（%d）", status),
		Category: "auth",
		Action:   "再度ログインしてください。",
		Status:   status,
	}
}

// NewSessionExpiredError はローカル認証セッションの不在・期限切れエラーを生成する。
// ネットワーク呼び出しの前段で検出された場合に使用する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "ログインセッションが存在しないか期限切れです",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたリソースが見つかりません",
		Category: "network",
		Action:   "最新の状態に更新してから再度お試しください。",
		Status:   404,
	}
}

// NewServerError はサーバーエラー（5xx）を生成する。
func NewServerError(status int) *APIError {
	return &APIError{
		Code:     ErrCodeServerError,
		Message:  fmt.Sprintf("サーバーエラーが発生しました（%d）", status),
		Category: "server",
		Action:   "しばらく待ってから再度お試しください。",
		Status:   status,
	}
}

// NewTimeoutError はクライアント側タイムアウトによる中断エラーを生成する。
func NewTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  "リクエストがタイムアウトしました",
		Category: "network",
		Action:   "通信環境を確認してから再度お試しください。",
	}
}

// NewRequestFailedError はその他の非2xx応答のエラーを生成する。
// サーバーが返したメッセージがあればそれを、なければステータス行を使用する。
func NewRequestFailedError(status int, message string) *APIError {
	return &APIError{
		Code:     ErrCodeRequestFailed,
		Message:  message,
		Category: "network",
		Action:   "入力内容を確認してから再度お試しください。",
		Status:   status,
	}
}

// NewValidationError はリクエスト内容の検証エラーを生成する。
// サーバーが返した検証メッセージをそのまま表示する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewSessionNotFoundError は予約対象セッションの未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", sessionID),
		Category: "network",
		Action:   "セッション一覧を更新してください。",
		Status:   404,
	}
}

// IsAuthenticationError はエラーが認証失敗（401/403またはローカルセッション切れ）かを判定する。
// 認証エラーは呼び出し元でログイン画面への誘導が必要なため、常に再スローされる。
func IsAuthenticationError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeAuthFailed || apiErr.Code == ErrCodeSessionExpired
}

// IsNotFoundError はエラーがリソース未検出（404）かを判定する。
// 冪等な削除操作では成功として扱われる。
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeNotFound || apiErr.Code == ErrCodeSessionNotFound
}

// IsServerError はエラーがサーバーエラー（5xx）かを判定する。
func IsServerError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeServerError
}

// IsTimeoutError はエラーがクライアント側タイムアウトかを判定する。
func IsTimeoutError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == ErrCodeTimeout
}

// UserMessage はエラーからUI表示用のメッセージを取り出す。
// APIErrorの場合はMessageを、それ以外は汎用メッセージを返す。
// ストアのerrorフィールドに格納される文字列はこの関数を経由する。
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "通信に失敗しました。再度お試しください。"
}
