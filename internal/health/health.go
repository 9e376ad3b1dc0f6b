package health

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Server is the liveness endpoint for binaries that don't serve the API.
type Server struct {
	srv    *http.Server
	logger *logrus.Logger
}

func StartServer(port string, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("health server failed: %v", err)
		}
	}()

	return &Server{srv: srv, logger: logger}
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
