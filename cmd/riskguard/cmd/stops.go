package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStopsCmd(rc *RootConfig) *cobra.Command {
	var (
		steps     int
		strategy  string
		pips      float64
		smaPeriod int
		margin    float64
		apply     bool
	)
	cmd := &cobra.Command{
		Use:   "stops",
		Short: "Compute dynamic stop moves for the open positions",
		Long: `Replay the simulated price path, then ask the stop strategy for a new stop
loss for every open position. Only moves that tighten the stop are reported.
With --apply the moves are sent to the account.

Examples:
  riskguard stops
  riskguard stops --strategy follower --pips 30 --apply
  riskguard stops --strategy sma --sma-period 20 --margin 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rc.load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("strategy") {
				cfg.Stops.Strategy = strategy
			}
			if flags.Changed("pips") {
				cfg.Stops.Pips = pips
			}
			if flags.Changed("sma-period") {
				cfg.Stops.SMAPeriod = smaPeriod
			}
			if flags.Changed("margin") {
				cfg.Stops.SMAMarginPips = margin
			}
			log, err := rc.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			rt, err := newRuntime(cfg, log, runtimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.strategy == nil {
				return fmt.Errorf("no stop strategy configured")
			}

			ctx := cmd.Context()
			if err := rt.replay(ctx, steps, nil); err != nil {
				return err
			}
			positions, err := rt.platform.Positions(ctx)
			if err != nil {
				return fmt.Errorf("positions: %w", err)
			}
			rep := rt.stops.Evaluate(ctx, positions, rt.strategy)

			applyErrs := map[string]error{}
			if apply {
				for _, d := range rep.Decisions {
					if err := rt.platform.ModifyStops(ctx, d.Request(0)); err != nil {
						log.Warn("stop move rejected", zap.String("ticket", d.Ticket), zap.Error(err))
						applyErrs[d.Ticket] = err
					}
				}
			}
			renderStops(cmd.OutOrStdout(), rep, applyErrs)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&steps, "steps", -1, "price steps to replay first (-1 for all)")
	f.StringVar(&strategy, "strategy", "", "stop strategy: follower|sma (overrides config)")
	f.Float64Var(&pips, "pips", 0, "follower distance in pips")
	f.IntVar(&smaPeriod, "sma-period", 0, "SMA period in bars")
	f.Float64Var(&margin, "margin", 0, "SMA margin in pips")
	f.BoolVar(&apply, "apply", false, "send the moves to the account")
	return cmd
}
