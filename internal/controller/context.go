package controller

import "context"

type contextKey int

const sessionIDCtxKey contextKey = iota

func withSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDCtxKey, sessionID)
}

func (c controller) getSessionIDFromCtx(ctx context.Context) string {
	sessionID, ok := ctx.Value(sessionIDCtxKey).(string)
	if !ok {
		return ""
	}

	return sessionID
}
