package httpapi

import (
	"context"
	"net/http"
)

func contextWithAccount(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, ctxAccountID, accountID)
}

// accountFrom lê o accountID resolvido pelo middleware de sessão.
func accountFrom(r *http.Request) string {
	v, _ := r.Context().Value(ctxAccountID).(string)
	return v
}
