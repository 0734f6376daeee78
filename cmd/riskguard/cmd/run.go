package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/metrics"
	"github.com/rustyeddy/riskguard/supervisor"
)

func newRunCmd(rc *RootConfig) *cobra.Command {
	var (
		metricsAddr string
		pace        time.Duration
		linger      bool
		interval    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay the simulated account through the poll cycle",
		Long: `Run one poll cycle at the start of the simulation and one after every
price step: closed trades feed the losing streak, the protections are
evaluated, stops are ratcheted and sent to the account, and everything is
journaled. Protector state is persisted when state.path is set.

With platform.type oanda the cycle polls the live account every
platform.poll_interval until interrupted.

Examples:
  riskguard run
  riskguard run -c riskguard.yaml --pace 1s
  riskguard run --metrics-addr :9090 --linger
  RISKGUARD_OANDA_TOKEN=... riskguard run -c oanda.yaml --interval 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rc.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			log, err := rc.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			rt, err := newRuntime(cfg, log, runtimeOptions{journal: true, persist: true, metrics: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Metrics.Addr != "" {
				shutdown := serveMetrics(ctx, cfg.Metrics.Addr, rt.metrics, log)
				defer shutdown()
			}

			if rt.sim == nil {
				if !cmd.Flags().Changed("interval") {
					if interval, err = cfg.Platform.Interval(); err != nil {
						return err
					}
				}
				return rt.sup.Run(ctx, interval)
			}

			var reports []supervisor.CycleReport
			cycle := func() {
				rep, err := rt.sup.RunCycle(ctx)
				if err != nil {
					log.Warn("poll cycle finished with errors", zap.Error(err))
				}
				reports = append(reports, rep)
			}

			cycle()
			err = rt.replay(ctx, -1, func(int) error {
				cycle()
				if pace > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(pace):
					}
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			renderRun(cmd.OutOrStdout(), reports)

			if linger && cfg.Metrics.Addr != "" && ctx.Err() == nil {
				log.Info("replay finished, serving metrics until interrupted", zap.String("addr", cfg.Metrics.Addr))
				<-ctx.Done()
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	f.DurationVar(&pace, "pace", 0, "wall clock pause between price steps")
	f.BoolVar(&linger, "linger", false, "keep serving metrics after the replay until interrupted")
	f.DurationVar(&interval, "interval", 0, "poll interval for a live platform (overrides platform.poll_interval)")
	return cmd
}

// serveMetrics starts the metrics listener and returns its shutdown func.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "OK")
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("metrics shutdown", zap.Error(err))
		}
	}
}

func renderRun(w io.Writer, reports []supervisor.CycleReport) {
	t := newTable(w, "POLL CYCLES")
	t.AppendHeader(table.Row{"#", "Time", "Allowed", "Factor", "Denied", "Closed", "Stops moved", "Rejected"})
	var denied, moved int
	for i, r := range reports {
		if !r.Evaluated {
			t.AppendRow(table.Row{i, "", "error", "", "", len(r.Closed), r.Applied(), len(r.ApplyErrors)})
			continue
		}
		names := make([]string, 0, len(r.Result.Denied()))
		for _, c := range r.Result.Denied() {
			names = append(names, string(c))
		}
		if !r.Result.TradingAllowed {
			denied++
		}
		moved += r.Applied()
		t.AppendRow(table.Row{
			i,
			r.Result.Time.Format("2006-01-02 15:04"),
			yesNo(r.Result.TradingAllowed),
			fmt.Sprintf("%.2f", r.Result.VolumeFactor),
			strings.Join(names, ","),
			len(r.Closed),
			r.Applied(),
			len(r.ApplyErrors),
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d denied", denied), "", "", "", moved, ""})
	t.Render()
}
