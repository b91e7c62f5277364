package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server with conservative timeouts. Report builds can
// take a few seconds on a large book, hence the generous write timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
