package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/acled-ingest/internal/api"
	"github.com/sells-group/acled-ingest/internal/ingest"
	"github.com/sells-group/acled-ingest/internal/store"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

var (
	servePort  int
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored events as GeoJSON",
	Long: `Starts the read-only query API. With --watch, the incoming directory is
also scanned on the configured interval in the same process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		validate := cfg.ValidateServe
		if serveWatch {
			validate = func() error {
				if err := cfg.Validate(); err != nil {
					return err
				}
				return cfg.ValidateServe()
			}
		}
		if err := validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := newRegistry()
		srv := api.NewServer(st, api.Options{
			RateLimit:   cfg.Server.RateLimit,
			CORSOrigins: cfg.Server.CORSOrigins,
			Gatherer:    reg,
		})

		var runner *ingest.Runner
		if serveWatch {
			runner = newStoreRunner(st, ingest.NewMetrics(reg))
		}

		return serve(ctx, srv, resolvePort(servePort, cfg.Server.Port), runner, cfg.Ingest.Interval)
	},
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newStoreRunner builds a Runner writing to an already open store.
func newStoreRunner(st store.Store, metrics *ingest.Metrics) *ingest.Runner {
	proc := ingest.NewProcessor(st,
		ingest.WithSniffBytes(cfg.Ingest.SniffBytes),
		ingest.WithMetrics(metrics),
	)
	return ingest.NewRunner(proc, ingest.NewRunLog(st), metrics, ingest.RunnerConfig{
		IncomingDir: cfg.Ingest.IncomingDir,
		ArchiveDir:  cfg.Ingest.ArchiveDir,
		Pattern:     cfg.Ingest.Pattern,
	})
}

// serve runs the HTTP server, and the watcher when runner is non-nil, until
// ctx is cancelled or the server fails.
func serve(ctx context.Context, srv *api.Server, port int, runner *ingest.Runner, interval time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(fmt.Sprintf(":%d", port))
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if runner != nil {
		g.Go(func() error {
			return runner.Watch(gctx, interval)
		})
	}

	return g.Wait()
}

func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "also scan the incoming directory every ingest.interval")
	rootCmd.AddCommand(serveCmd)
}
