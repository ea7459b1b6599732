// Package middleware provides HTTP middleware for request logging and
// metrics.
package middleware

import (
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// statusWriter captures the status code and body size a handler writes,
// for the logging and metrics layers.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

var requestSeq atomic.Uint64

// Logging logs one line per request, tagged with a monotonically
// increasing id echoed in X-Request-Id and with the tracked membership
// size observed after the handler ran, so log lines correlate requests
// with the membership changes they caused. trackedSize may be nil when
// no tracker is wired.
func Logging(trackedSize func() int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strconv.FormatUint(requestSeq.Add(1), 10)
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		tracked := -1
		if trackedSize != nil {
			tracked = trackedSize()
		}
		log.Printf("request_id=%s method=%s path=%s status=%d bytes=%d tracked=%d duration=%s",
			id,
			r.Method,
			r.URL.Path,
			sw.status,
			sw.bytes,
			tracked,
			time.Since(start),
		)
	})
}
