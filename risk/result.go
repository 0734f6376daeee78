package risk

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Check names one protection.
type Check string

const (
	CheckBreakdown         Check = "breakdown"
	CheckMaxDrawdown       Check = "max_drawdown"
	CheckDailyLoss         Check = "daily_loss"
	CheckWeeklyLoss        Check = "weekly_loss"
	CheckMonthlyLoss       Check = "monthly_loss"
	CheckConsecutiveLosses Check = "consecutive_losses"
	CheckVolatility        Check = "volatility"
	CheckCorrelation       Check = "correlation"
	CheckTimeWindow        Check = "time_window"
)

// AllChecks lists every check in evaluation order.
var AllChecks = []Check{
	CheckBreakdown,
	CheckMaxDrawdown,
	CheckDailyLoss,
	CheckWeeklyLoss,
	CheckMonthlyLoss,
	CheckConsecutiveLosses,
	CheckVolatility,
	CheckCorrelation,
	CheckTimeWindow,
}

// ParseCheck validates a check name.
func ParseCheck(s string) (Check, error) {
	for _, c := range AllChecks {
		if string(c) == s {
			return c, nil
		}
	}
	return "", configErr("", "check", "unknown check %q", s)
}

type Status string

const (
	StatusPass         Status = "pass"
	StatusFail         Status = "fail"
	StatusNotEvaluated Status = "not_evaluated"
	StatusError        Status = "error"
)

// CheckResult is the diagnostic outcome of one protection.
type CheckResult struct {
	Check  Check
	Status Status
	// Factor is the volume multiplier the check recommends, in (0, 1].
	Factor float64
	// Value is the measured quantity (loss %, streak, ratio, |corr|).
	Value  float64
	Limit  float64
	Reason string
	Err    error
}

func (r CheckResult) Allowed() bool { return r.Status != StatusFail }

func pass(c Check, value, limit float64) CheckResult {
	return CheckResult{Check: c, Status: StatusPass, Factor: 1, Value: value, Limit: limit}
}

func fail(c Check, value, limit float64, format string, args ...any) CheckResult {
	return CheckResult{Check: c, Status: StatusFail, Factor: 1, Value: value, Limit: limit,
		Reason: fmt.Sprintf(format, args...)}
}

func notEvaluated(c Check, err error) CheckResult {
	return CheckResult{Check: c, Status: StatusNotEvaluated, Factor: 1, Reason: err.Error(), Err: err}
}

func errored(c Check, err error) CheckResult {
	return CheckResult{Check: c, Status: StatusError, Factor: 1, Reason: err.Error(), Err: err}
}

// Result is the verdict of one aggregator pass.
type Result struct {
	Time           time.Time
	Symbol         string
	TradingAllowed bool
	VolumeFactor   float64
	Reasons        []string
	Checks         map[Check]CheckResult
}

// Ordered returns the check results in AllChecks order.
func (r Result) Ordered() []CheckResult {
	out := make([]CheckResult, 0, len(r.Checks))
	for _, c := range AllChecks {
		if cr, ok := r.Checks[c]; ok {
			out = append(out, cr)
		}
	}
	return out
}

// Denied lists the checks that drove a deny decision.
func (r Result) Denied() []Check {
	var out []Check
	for _, cr := range r.Ordered() {
		if cr.Status == StatusFail {
			out = append(out, cr.Check)
		}
	}
	return out
}

// Combine folds check results into one verdict: allowed is the AND of all
// allow flags, factor the MIN of all multipliers. Checks that could not be
// evaluated deny only when listed in required.
func Combine(results []CheckResult, required map[Check]bool) (allowed bool, factor float64, reasons []string) {
	allowed, factor = true, 1.0
	for _, r := range results {
		switch r.Status {
		case StatusFail:
			allowed = false
			reasons = append(reasons, r.Reason)
		case StatusNotEvaluated, StatusError:
			if required[r.Check] {
				allowed = false
				reasons = append(reasons, fmt.Sprintf("%s required but not evaluated: %s", r.Check, r.Reason))
			}
		case StatusPass:
			if r.Factor < 1 && r.Reason != "" {
				reasons = append(reasons, r.Reason)
			}
		}
		if r.Factor > 0 {
			factor = math.Min(factor, r.Factor)
		}
	}
	return allowed, factor, reasons
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
