package idempotency

import (
	"net/http"
)

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}

// Middleware replays a stored response when the request carries a known
// key. Only successful responses are stored, so a failed create can be
// retried with the same key.
func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			if key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key = r.URL.Path + "|" + key

			if resp, found := store.Get(r.Context(), key); found {
				for k, v := range resp.Headers {
					for _, val := range v {
						w.Header().Add(k, val)
					}
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(resp.StatusCode)
				w.Write(resp.Body) //nolint:errcheck
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 300 {
				store.Set(r.Context(), key, Response{
					StatusCode: rec.statusCode,
					Body:       rec.body,
					Headers:    rec.Header().Clone(),
				})
			}
		})
	}
}
