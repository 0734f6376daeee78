// Package metrics exposes protector verdicts and stop activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
)

const namespace = "riskguard"

// Metrics holds the collectors of one process.
type Metrics struct {
	reg prometheus.Gatherer

	evaluations  *prometheus.CounterVec
	tradingAllow *prometheus.GaugeVec
	volumeFactor *prometheus.GaugeVec
	checkStatus  *prometheus.GaugeVec
	denials      *prometheus.CounterVec
	equity       *prometheus.GaugeVec
	drawdown     *prometheus.GaugeVec
	stopUpdates  *prometheus.CounterVec
	stopRejected *prometheus.CounterVec
	stopFailures *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lossStreak   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWith(reg, reg)
}

// NewWith registers the collectors on r and serves them from g.
func NewWith(r prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		reg: g,
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Protector evaluations by verdict",
			},
			[]string{"symbol", "verdict"},
		),
		tradingAllow: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "trading_allowed",
				Help:      "1 when the last verdict allowed new positions",
			},
			[]string{"symbol"},
		),
		volumeFactor: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "volume_factor",
				Help:      "Volume multiplier of the last verdict",
			},
			[]string{"symbol"},
		),
		checkStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "check_status",
				Help:      "1 for the current status of each check",
			},
			[]string{"symbol", "check", "status"},
		),
		denials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "denials_total",
				Help:      "Deny decisions by driving check",
			},
			[]string{"symbol", "check"},
		),
		equity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "account_equity",
				Help:      "Last observed equity and peak",
			},
			[]string{"kind"},
		),
		drawdown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "period_loss_percent",
				Help:      "Loss accumulated in the current window, percent of reference",
			},
			[]string{"period"},
		),
		stopUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stop_updates_total",
				Help:      "Stop moves by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		stopRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stop_candidates_rejected_total",
				Help:      "Candidates the ratchet refused",
			},
			[]string{"strategy"},
		),
		stopFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stop_failures_total",
				Help:      "Positions whose candidate could not be computed",
			},
			[]string{"symbol"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Cycle errors by stage",
			},
			[]string{"stage"},
		),
		lossStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consecutive_losses",
			Help:      "Current losing streak",
		}),
	}

	r.MustRegister(
		m.evaluations,
		m.tradingAllow,
		m.volumeFactor,
		m.checkStatus,
		m.denials,
		m.equity,
		m.drawdown,
		m.stopUpdates,
		m.stopRejected,
		m.stopFailures,
		m.errorsTotal,
		m.lossStreak,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func verdict(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var statuses = []risk.Status{risk.StatusPass, risk.StatusFail, risk.StatusNotEvaluated, risk.StatusError}

// ObserveResult records one protector verdict.
func (m *Metrics) ObserveResult(res risk.Result) {
	m.evaluations.WithLabelValues(res.Symbol, verdict(res.TradingAllowed)).Inc()
	m.tradingAllow.WithLabelValues(res.Symbol).Set(b2f(res.TradingAllowed))
	m.volumeFactor.WithLabelValues(res.Symbol).Set(res.VolumeFactor)

	for _, cr := range res.Ordered() {
		for _, s := range statuses {
			m.checkStatus.WithLabelValues(res.Symbol, string(cr.Check), string(s)).Set(b2f(cr.Status == s))
		}
	}
	for _, c := range res.Denied() {
		m.denials.WithLabelValues(res.Symbol, string(c)).Inc()
	}
}

// ObserveState records the account view held by the protector.
func (m *Metrics) ObserveState(s risk.State) {
	m.equity.WithLabelValues("equity").Set(s.LastEquity)
	m.equity.WithLabelValues("balance").Set(s.LastBalance)
	m.equity.WithLabelValues("peak").Set(s.PeakBalance)
	m.lossStreak.Set(float64(s.ConsecutiveLosses))
	for p, w := range s.Windows {
		if w.ReferenceBalance > 0 {
			m.drawdown.WithLabelValues(string(p)).Set(w.LossAccum * 100 / w.ReferenceBalance)
		}
	}
}

// ObserveStops records a stop engine pass. applyErrs holds the mutator
// answer per decision ticket; a missing entry means applied.
func (m *Metrics) ObserveStops(rep stops.Report, applyErrs map[string]error) {
	for _, d := range rep.Decisions {
		outcome := "applied"
		if applyErrs[d.Ticket] != nil {
			outcome = "rejected_by_broker"
		}
		m.stopUpdates.WithLabelValues(d.Symbol, outcome).Inc()
	}
	if n := len(rep.Unchanged); n > 0 {
		m.stopRejected.WithLabelValues(rep.Strategy).Add(float64(n))
	}
	for _, f := range rep.Failures {
		m.stopFailures.WithLabelValues(f.Symbol).Inc()
	}
}

// ObserveError counts a failed cycle stage (account, journal, store, ...).
func (m *Metrics) ObserveError(stage string) {
	m.errorsTotal.WithLabelValues(stage).Inc()
}
