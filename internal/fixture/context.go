package fixture

import (
	"context"
	"errors"
)

// contextKey はコンテキスト値の衝突を避けるための独自型。
type contextKey string

const userIDKey contextKey = "fixture_user_id"

// withUserID は認証済みユーザーIDをコンテキストに格納する。
func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userIDFromContext はコンテキストから認証済みユーザーIDを取得する。
func userIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok || userID == "" {
		return "", errors.New("user ID not found in context")
	}
	return userID, nil
}
