package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/NHSDigital/clinical-data-gateway-api/log"
	"github.com/pborman/uuid"
)

// type to create context.Context key
type CtxTransactionKeyType string

// context.Context key to get the transaction ID from the request context
const CtxTransactionKey CtxTransactionKeyType = "ctxTransaction"

// TransactionIDHeader echoes the transaction ID back to the caller.
const TransactionIDHeader = "X-Transaction-ID"

// Adds a transaction ID to the request context and to the request logger
func NewTransactionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New()
		ctx := context.WithValue(r.Context(), CtxTransactionKey, id)
		ctx, _ = log.SetCtxLogger(ctx, "transaction_id", id)
		w.Header().Set(TransactionIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTransactionID returns the transaction ID stored by NewTransactionID, or ""
// when the request did not pass through it.
func GetTransactionID(ctx context.Context) string {
	id, _ := ctx.Value(CtxTransactionKey).(string)
	return id
}

// UnescapePath routes on the decoded path, so a client that percent-encodes
// "$" in "$gpc.getstructuredrecord" reaches the operation. Paths with an
// encoded "/" keep their raw form.
func UnescapePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawPath != "" && !strings.Contains(strings.ToLower(r.URL.RawPath), "%2f") {
			r = r.Clone(r.Context())
			r.URL.RawPath = ""
		}
		next.ServeHTTP(w, r)
	})
}
