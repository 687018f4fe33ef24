package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rendis/actiondesk/internal/logging"
	"github.com/rendis/actiondesk/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "actiondesk",
		Short:         "Chat front door that turns requests into calendar, email, invoice and payment actions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./actiondesk.yaml or ~/.actiondesk/actiondesk.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v, cfgFile)
		},
	}
	serve.Flags().String("listen", "", "listen address, e.g. :4100")
	_ = v.BindPFlag("listen_addr", serve.Flags().Lookup("listen"))

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the chat tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), v, cfgFile)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}

	root.AddCommand(serve, mcpCmd, versionCmd)
	return root
}

// setup loads config and builds the logger and the component graph.
func setup(ctx context.Context, v *viper.Viper, cfgFile string) (Config, *slog.LevelVar, *app, error) {
	cfg, err := loadConfig(v, cfgFile)
	if err != nil {
		return Config{}, nil, nil, err
	}
	// Stdout belongs to the MCP transport; logs always go to stderr.
	logger, level := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return Config{}, nil, nil, err
	}
	return cfg, level, a, nil
}

func runServe(parent context.Context, v *viper.Viper, cfgFile string) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, level, a, err := setup(ctx, v, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	h, err := a.handler(cfg, logger)
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}
	swapper := newHandlerSwapper(h)
	r := &reloader{
		current: cfg,
		level:   level,
		swapper: swapper,
		rebuild: func(next Config) (http.Handler, error) { return a.handler(next, logger) },
		logger:  logger,
	}
	r.watch(v)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := a.scheduler.Stop(); err != nil {
			logger.Warn("scheduler stop failed", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("actiondesk listening",
			slog.String("addr", cfg.ListenAddr),
			slog.String("base_url", cfg.BaseURL),
			slog.String("detection", cfg.Detection.Mode),
			slog.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(parent context.Context, v *viper.Viper, cfgFile string) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, a, err := setup(ctx, v, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	coord, err := a.coordinator(cfg, a.logger)
	if err != nil {
		return fmt.Errorf("build coordinator: %w", err)
	}
	srv := mcp.NewServer(mcp.ServerDeps{
		Chat:    coord,
		Actions: a.registry,
		Hub:     a.hub,
		Version: version,
		Logger:  a.logger,
	})
	return srv.Serve(ctx)
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
