package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kebairia/markabak/internal/metrics"
	"github.com/kebairia/markabak/internal/operations"
	"github.com/kebairia/markabak/internal/scheduler"
)

var (
	scheduleCron      string
	scheduleMetrics   string
	scheduleNoEncrypt bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run automatic backups on a cron schedule until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		a, err := newApp(ctx, operations.WithMetrics(m))
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		spec := cfg.Schedule.Cron
		if scheduleCron != "" {
			spec = scheduleCron
		}
		s, err := scheduler.New(a.engine, spec,
			scheduler.WithLogger(log),
			scheduler.WithEncryption(!scheduleNoEncrypt),
		)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return s.Run(gctx) })

		if scheduleMetrics != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler(reg))
			srv := &http.Server{
				Addr:              scheduleMetrics,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			g.Go(func() error {
				log.Info("metrics listening", "addr", scheduleMetrics)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		return g.Wait()
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression, overrides schedule.cron")
	scheduleCmd.Flags().StringVar(&scheduleMetrics, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9108")
	scheduleCmd.Flags().BoolVar(&scheduleNoEncrypt, "no-encrypt", false, "write unencrypted scheduled artifacts")
}
