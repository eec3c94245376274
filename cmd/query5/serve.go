package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"query5/internal/api"
	"query5/internal/config"
	"query5/internal/engine"
)

func newServeCmd(flags *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the tables once and serve queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.buildConfig(cmd.Flags())
			if err != nil {
				return fail("config", exitUsage, err)
			}
			if err := cfg.ValidateServe(); err != nil {
				cmd.Usage()
				return fail("args", exitUsage, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (default :8080)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Log.Build()
	defer logger.Sync()

	// 1. Initialize Echo (starts instantly)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	// 2. Handler without data, data endpoints answer 503 until the load finishes
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	h := api.NewHandler(engine.NewEngine(logger, cfg.StrictRegion), reg, logger)
	h.RegisterRoutes(e)

	// 3. Load tables in the background
	go func() {
		logger.Info("background table load started", zap.String("table_path", cfg.TablePath))
		t0 := time.Now()

		loader := engine.NewLoader(cfg.TablePath, runtime.NumCPU(), logger)
		tables, summary, err := loader.Load(ctx)
		if err != nil {
			logger.Error("background table load failed", zap.Error(err))
			return
		}
		h.SetData(tables, summary)

		logger.Info("tables loaded, API is fully ready", zap.Duration("elapsed", time.Since(t0)))
	}()

	// 4. Start server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Serve.Addr))
		errCh <- e.Start(cfg.Serve.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fail("serve", exitFailure, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fail("serve", exitFailure, err)
	}
	return nil
}
