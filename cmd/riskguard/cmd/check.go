package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ErrTradingDenied is returned by check --fail-on-deny.
var ErrTradingDenied = errors.New("trading denied")

func newCheckCmd(rc *RootConfig) *cobra.Command {
	var (
		steps      int
		symbol     string
		failOnDeny bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate the account protections once",
		Long: `Replay the simulated price path, feeding closed trades into the losing
streak, then evaluate every enabled protection and print the verdict.

Examples:
  riskguard check
  riskguard check -c riskguard.yaml --steps 2
  riskguard check --symbol GBP_USD --fail-on-deny`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rc.load()
			if err != nil {
				return err
			}
			log, err := rc.logger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync()

			rt, err := newRuntime(cfg, log, runtimeOptions{persist: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			err = rt.replay(ctx, steps, func(int) error {
				closed, err := rt.platform.ClosedTrades(ctx)
				if err != nil {
					return err
				}
				for _, t := range closed {
					rt.protector.RecordOutcome(t)
				}
				return nil
			})
			if err != nil {
				return err
			}

			if symbol == "" {
				symbol = cfg.Symbol
			}
			res, err := rt.protector.Evaluate(ctx, symbol)
			if res.Checks == nil {
				return fmt.Errorf("evaluate: %w", err)
			}
			if err != nil {
				log.Warn("some checks could not be evaluated", zap.Error(err))
			}
			renderResult(cmd.OutOrStdout(), res)
			if failOnDeny && !res.TradingAllowed {
				return fmt.Errorf("%w: %v", ErrTradingDenied, res.Denied())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", -1, "price steps to replay before evaluating (-1 for all)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol to evaluate (defaults to the configured symbol)")
	cmd.Flags().BoolVar(&failOnDeny, "fail-on-deny", false, "exit with an error when trading is denied")
	return cmd
}

// replay applies up to n simulated steps, all of them when n < 0, calling
// each after every step.
func (rt *runtime) replay(ctx context.Context, n int, each func(i int) error) error {
	steps := rt.steps
	if n >= 0 && n < len(steps) {
		steps = steps[:n]
	}
	for i, s := range steps {
		if err := rt.sim.Step(ctx, s); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if each != nil {
			if err := each(i); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
	}
	return nil
}
