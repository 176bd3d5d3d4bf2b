// Package requestid propagates a correlation ID from the X-Request-ID header,
// generating one when the caller did not send it.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"healthcommons/pkg/requestcontext"
)

// Header is the request and response header carrying the correlation ID.
const Header = "X-Request-ID"

const maxLength = 128

// Middleware injects the request ID into the context and echoes it back.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" || len(id) > maxLength {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
