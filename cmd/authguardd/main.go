// Command authguardd wires pkg/middleware in front of a chi router,
// grounded on the teacher's graceful-shutdown server shape
// (cmd/thv-registry-api/app/serve.go runServe).
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/authguard/authguard/pkg/config"
	"github.com/authguard/authguard/pkg/logger"
	"github.com/authguard/authguard/pkg/middleware"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func main() {
	address := flag.String("address", ":8443", "address to listen on")
	configPath := flag.String("config", "authguard.yaml", "path to the authguard YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("failed to load config %s: %v", *configPath, err)
		os.Exit(1)
	}

	mod, err := middleware.New(*cfg)
	if err != nil {
		logger.Errorf("failed to construct middleware: %v", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(mod.Handler())
	router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	server := &http.Server{
		Addr:         *address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
		// ConnContext attaches the per-connection ClientState so invariant
		// I1 holds across a keep-alive connection's requests, and runs
		// authn.Scheme.Setup once per connection (§4.5 "Per-client attach").
		ConnContext: mod.ConnContext,
	}

	go func() {
		logger.Infof("authguardd listening on %s", *address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down authguardd...")

	ctx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
		os.Exit(1)
	}
	logger.Info("authguardd shutdown complete")
}
