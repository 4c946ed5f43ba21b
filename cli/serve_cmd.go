package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/stevemurr/state-table-server/command"
	"github.com/stevemurr/state-table-server/config"
	"github.com/stevemurr/state-table-server/handler"
	"github.com/stevemurr/state-table-server/logging"
	"github.com/stevemurr/state-table-server/store"
	"github.com/stevemurr/state-table-server/table"
)

type serveOptions struct {
	configPath string
	envFile    string
	listenAddr string
	backend    string
	dataDir    string
	logLevel   string
}

func (o *serveOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML config file")
	fs.StringVar(&o.envFile, "env-file", ".env", "Optional .env file loaded before reading the environment")
	fs.StringVar(&o.listenAddr, "listen", "", "Listen address (default "+config.DefaultListenAddr+")")
	fs.StringVar(&o.backend, "store", "", "Persistence backend: json, sqlite, postgres, memory, log")
	fs.StringVar(&o.dataDir, "data-dir", "", "Directory for file-based backends")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// apply overlays explicitly set flags on cfg.
func (o *serveOptions) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("listen") {
		cfg.Server.ListenAddr = o.listenAddr
	}
	if fs.Changed("store") {
		cfg.Store.Backend = o.backend
	}
	if fs.Changed("data-dir") {
		cfg.Store.DataDir = o.dataDir
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	return cfg.Validate()
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the state table server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(opts.envFile); err != nil {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd.Flags(), cfg); err != nil {
				return err
			}
			logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.ListenAddr, err)
			}
			return runServer(ctx, cfg, logger, ln)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

// runServer serves on ln until ctx is cancelled, then drains in-flight
// requests and closes the store.
func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, ln net.Listener) error {
	s, err := store.New(ctx, cfg.Store.Backend, store.Options{
		DataDir:     cfg.Store.DataDir,
		PostgresDSN: cfg.Store.PostgresDSN,
		Logger:      logger,
	})
	if err != nil {
		ln.Close()
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	registry := table.NewRegistry(store.NewHook(s), logger)
	router := command.NewRouter(registry, logger)
	h := handler.New(router, handler.Options{
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RequestsPerSecond:  cfg.Rate.RequestsPerSecond,
		Burst:              cfg.Rate.Burst,
		Logger:             logger,
	})

	srv := &http.Server{
		Handler:     h,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", ln.Addr().String(), "store", cfg.Store.Backend)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
