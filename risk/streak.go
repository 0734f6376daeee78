package risk

import (
	"fmt"

	"github.com/rustyeddy/riskguard/broker"
)

// StreakConfig configures consecutive-loss sizing.
type StreakConfig struct {
	MaxConsecutiveLosses  int
	VolumeReductionFactor float64
}

func (c StreakConfig) Validate() error {
	if c.MaxConsecutiveLosses <= 0 {
		return configErr(CheckConsecutiveLosses, "max_consecutive_losses", "must be positive, got %d", c.MaxConsecutiveLosses)
	}
	if c.VolumeReductionFactor <= 0 || c.VolumeReductionFactor > 1 {
		return configErr(CheckConsecutiveLosses, "volume_reduction_factor", "must be in (0, 1], got %v", c.VolumeReductionFactor)
	}
	return nil
}

// RecordOutcome extends the losing streak on a loss and clears it on a win.
// A break-even trade counts as a win.
func (s *State) RecordOutcome(t broker.ClosedTrade) {
	if t.IsLoss() {
		s.ConsecutiveLosses++
		return
	}
	s.ConsecutiveLosses = 0
}

// ConsecutiveLossesCheck returns the reduction factor once the streak reaches
// the threshold and 1.0 below it. It never blocks trading and never
// compounds across evaluations.
func (s *State) ConsecutiveLossesCheck(c StreakConfig) (CheckResult, error) {
	if err := c.Validate(); err != nil {
		return CheckResult{}, err
	}
	streak := float64(s.ConsecutiveLosses)
	r := pass(CheckConsecutiveLosses, streak, float64(c.MaxConsecutiveLosses))
	if s.ConsecutiveLosses >= c.MaxConsecutiveLosses {
		r.Factor = c.VolumeReductionFactor
		r.Reason = fmt.Sprintf("%d consecutive losses reached limit %d, volume factor %.2f",
			s.ConsecutiveLosses, c.MaxConsecutiveLosses, c.VolumeReductionFactor)
	}
	return r, nil
}
