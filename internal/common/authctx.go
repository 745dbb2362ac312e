package common

import "context"

type ctxKey string

const (
	accountIDKey    ctxKey = "account/id"
	accountEmailKey ctxKey = "account/email"
)

// WithAccount stores the caller's account identity on the context.
func WithAccount(ctx context.Context, id, email string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, id)
	return context.WithValue(ctx, accountEmailKey, email)
}

// AccountID extracts the account identifier from the context if present.
func AccountID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountIDKey).(string)
	return id, ok && id != ""
}

// AccountEmail extracts the account email from the context if present.
func AccountEmail(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(accountEmailKey).(string)
	return email, ok && email != ""
}
