package idempotency

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"
)

// Middleware replays the first completed response for a repeated
// Idempotency-Key. Requests without the header pass through untouched, and
// so does everything when the store is unreachable.
func Middleware(store Store, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderKey)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := Key(r.Method, r.URL.Path, raw)

			resp, err := store.Lookup(ctx, key)
			switch {
			case errors.Is(err, ErrInFlight):
				inFlight(w)
				return
			case err != nil:
				log.Warn("idempotency lookup failed", "key", raw, "err", err)
				next.ServeHTTP(w, r)
				return
			case resp != nil:
				replay(w, resp)
				return
			}

			claimed, err := store.Claim(ctx, key)
			if err != nil {
				log.Warn("idempotency claim failed", "key", raw, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				inFlight(w)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					log.Warn("idempotency release failed", "key", raw, "err", err)
				}
				return
			}
			saved := Response{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}
			if err := store.Save(ctx, key, saved); err != nil {
				log.Warn("idempotency save failed", "key", raw, "err", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, resp *Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func inFlight(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":     false,
		"message":     "A request with this Idempotency-Key is still being processed",
		"status_code": http.StatusConflict,
	})
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
