package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapp/backend/config"
	httpDelivery "github.com/snapp/backend/internal/delivery/http"
	"github.com/snapp/backend/internal/domain"
)

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic alert sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		noSweep, _ := cmd.Flags().GetBool("no-sweep")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Info("starting snapp backend",
			slog.String("version", version),
			slog.String("environment", cfg.Server.Environment),
			slog.String("cache", cfg.Cache.Type),
			slog.String("vector", cfg.Vector.Backend),
			slog.Int("sources", len(cfg.Sources)),
			slog.Bool("amazon", cfg.Amazon.Enabled()),
		)

		if !noSweep {
			sweepCtx, cancelSweeps := context.WithCancel(ctx)
			sweepsDone := startSweeps(sweepCtx, a, cfg.Alerts.Interval)
			// Runs before a.Close so no sweep outlives the catalog.
			defer func() {
				cancelSweeps()
				<-sweepsDone
			}()
		}

		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpDelivery.SetupRouter(cfg, a.handler(), a.logger),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("server listening", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// startSweeps runs the alert sweep loop in the background. The returned
// channel is closed once the loop has exited after ctx is cancelled.
func startSweeps(ctx context.Context, a *app, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runSweeps(ctx, a, interval)
	}()
	return done
}

// runSweeps evaluates alerts every interval until ctx is cancelled.
func runSweeps(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, a)
		}
	}
}

func sweepOnce(ctx context.Context, a *app) *domain.SweepReport {
	report, err := a.alerts.Sweep(ctx)
	if err != nil {
		a.logger.Error("alert sweep failed", slog.Any("error", err))
		return nil
	}
	a.logger.Info("alert sweep finished",
		slog.Int("evaluated", report.Evaluated),
		slog.Int("fired", report.Fired),
		slog.Int("failed", report.Failed),
	)
	return report
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate every active wishlist alert once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report := sweepOnce(ctx, a)
			if report == nil {
				return errors.New("alert sweep failed")
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

// --- prices ---

var pricesCmd = &cobra.Command{
	Use:   "prices <product name>",
	Short: "Compare prices for a product across every configured store",
	Long: `Compare prices for a product across every configured store.

Examples:
  snapp prices "velvet mini dress"
  snapp prices nike air max 90`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			prices, err := a.stores.FindBestPrices(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), prices)
		})
	},
}

// --- product ---

var productCmd = &cobra.Command{
	Use:   "product <url>",
	Short: "Resolve the details of a product URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			details, err := a.stores.GetProductDetails(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), details)
		})
	},
}

func init() {
	serveCmd.Flags().Bool("no-sweep", false, "do not run the periodic alert sweep")
}

// withApp loads configuration, wires the services and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
