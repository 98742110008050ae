package httpserver

import (
	"net/http"
	"time"
)

// New builds the admin HTTP server with sane defaults. Admin traffic is
// low-volume; tight timeouts keep a wedged client from pinning a connection.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}
