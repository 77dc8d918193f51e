// Command identityd runs the in-memory identity service over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pqportal/client-go/idservice"
	"github.com/pqportal/client-go/internal/config"
	"github.com/pqportal/client-go/internal/crypto"
	"github.com/pqportal/client-go/internal/privacylog"
)

var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. If ready is non-nil it receives the bound
// address once the listener is open.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, ready chan<- string) error {
	fs := flag.NewFlagSet("identityd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "path to pqportal.yaml (optional)")
	envFile := fs.String("env", ".env", "dotenv file to load (optional)")
	listen := fs.String("listen", "", "listen address override")
	metrics := fs.Bool("metrics", true, "serve /metrics")
	logLevel := fs.String("log-level", "", "log level override: debug | info | warn | error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(stdout, "identityd version=%s commit=%s\n", version, commit)
		return nil
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Listen = *listen
		case "metrics":
			cfg.Server.Metrics = metrics
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	logger := privacylog.New(stderr, privacylog.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	svc, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("identityd started",
		"addr", ln.Addr().String(),
		"algorithm", svc.Algorithm(),
		"metrics", cfg.Server.MetricsEnabled(),
		"version", version,
	)
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("identityd stopped")
	return nil
}

func buildService(cfg config.Config, logger *slog.Logger) (*idservice.Service, error) {
	binding := crypto.NewBinding(
		crypto.WithSignatureScheme(cfg.Crypto.SignatureScheme),
		crypto.WithKEMScheme(cfg.Crypto.KEMScheme),
	)
	tokens, err := idservice.GenerateTokenIssuer(cfg.Server.Issuer)
	if err != nil {
		return nil, err
	}

	opts := []idservice.Option{
		idservice.WithChallengeTTL(cfg.Server.ChallengeTTL),
		idservice.WithSessionTTL(cfg.Server.SessionTTL),
		idservice.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		idservice.WithTokenIssuer(tokens),
		idservice.WithLogger(logger),
	}
	if cfg.Server.MetricsEnabled() {
		opts = append(opts, idservice.WithMetrics(idservice.NewMetrics()))
	}
	return idservice.New(binding, opts...)
}
