package tx

import (
	"context"
	"errors"
	"net/http"
)

type key string

const KeyTx = key("tx")

var ErrNoTx = errors.New("no transaction runner in context")

type DBRepo interface {
	WithTx(ctx context.Context, cb func(ctx context.Context) error) error
}

type Tx struct {
	DbRepo DBRepo
}

func TxMiddlewareHTTP(repo DBRepo) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), KeyTx, Tx{DbRepo: repo})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TxExecute runs cb inside the transaction runner installed in ctx.
func TxExecute(ctx context.Context, cb func(ctx context.Context) error) error {
	t, ok := ctx.Value(KeyTx).(Tx)
	if !ok || t.DbRepo == nil {
		return ErrNoTx
	}
	return t.DbRepo.WithTx(ctx, cb)
}
