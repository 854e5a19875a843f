package transport

import "context"

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

func userIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userIDCtxKey).(string)
	return v
}
