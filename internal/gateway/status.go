package gateway

// RequestResult はHTTPステータスコードに基づく応答の分類。
type RequestResult int

const (
	// RequestResultOK は成功応答（2xx）。
	RequestResultOK RequestResult = iota
	// RequestResultAuthFailure は認証失敗（401/403）。トークンの破棄を伴う。
	RequestResultAuthFailure
	// RequestResultNotFound はリソース未検出（404）。
	RequestResultNotFound
	// RequestResultServerError はサーバーエラー（5xx）。
	RequestResultServerError
	// RequestResultClientError はその他のクライアントエラー（4xx）。
	// サーバーのエラーメッセージ解析を試みる。
	RequestResultClientError
)

// ClassifyStatus はHTTPステータスコードを応答分類に変換する。
func ClassifyStatus(statusCode int) RequestResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return RequestResultOK
	case statusCode == 401 || statusCode == 403:
		return RequestResultAuthFailure
	case statusCode == 404:
		return RequestResultNotFound
	case statusCode >= 500:
		return RequestResultServerError
	default:
		return RequestResultClientError
	}
}
