package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reservectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	instructions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservectl",
			Subsystem: "controller",
			Name:      "instructions_total",
			Help:      "Dispatched instructions by opcode and result code.",
		},
		[]string{"opcode", "code"},
	)
	instructionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reservectl",
			Subsystem: "controller",
			Name:      "instruction_duration_seconds",
			Help:      "Instruction handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"opcode"},
	)
	collateralRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reservectl",
			Subsystem: "ledger",
			Name:      "collateral_ratio_bps",
			Help:      "Last computed global collateralization ratio in basis points.",
		},
	)
	paused = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reservectl",
			Subsystem: "ledger",
			Name:      "paused",
			Help:      "1 while the protocol is paused.",
		},
	)
	emergencies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservectl",
			Subsystem: "emergency",
			Name:      "activations_total",
			Help:      "Emergency pause activations by type and trigger.",
		},
		[]string{"type", "trigger"},
	)
	invocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservectl",
			Subsystem: "host",
			Name:      "invocations_total",
			Help:      "Invocations by outcome (committed or rolled_back).",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			instructions, instructionDuration,
			collateralRatio, paused, emergencies, invocations,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordInstruction(opcode string, code uint32, duration time.Duration) {
	RegisterMetrics()
	instructions.WithLabelValues(opcode, strconv.FormatUint(uint64(code), 10)).Inc()
	instructionDuration.WithLabelValues(opcode).Observe(duration.Seconds())
}

func RecordLedger(ratioBps uint16, isPaused bool) {
	RegisterMetrics()
	collateralRatio.Set(float64(ratioBps))
	if isPaused {
		paused.Set(1)
	} else {
		paused.Set(0)
	}
}

func RecordEmergency(kind uint32, trigger string) {
	RegisterMetrics()
	emergencies.WithLabelValues(strconv.FormatUint(uint64(kind), 10), trigger).Inc()
}

func RecordInvocation(committed bool) {
	RegisterMetrics()
	outcome := "rolled_back"
	if committed {
		outcome = "committed"
	}
	invocations.WithLabelValues(outcome).Inc()
}
