package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Start serves handler on addr until ctx is cancelled, then drains in-flight requests.
// The returned context is done once the server has stopped.
func Start(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) (context.Context, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	logger.Info("service listening", "addr", ln.Addr().String())
	return serve(ctx, ln, handler, logger), nil
}

func serve(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) context.Context {
	done, cancel := context.WithCancel(context.Background())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		defer cancel()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("service stopped", "err", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
		case <-done.Done():
			return
		}
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "err", err)
		}
		logger.Info("service stopped")
	}()

	return done
}
