package monitoring

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veilmint/veilmint/logx"
)

type RequestRejectedReason string

var (
	RejectedInvalidPoint     RequestRejectedReason = "invalid_point"
	RejectedInvalidSignature RequestRejectedReason = "invalid_signature"
	RejectedAlreadySpent     RequestRejectedReason = "already_spent"
	RejectedAmountMismatch   RequestRejectedReason = "amount_mismatch"
	RejectedUnknownKeyset    RequestRejectedReason = "unknown_keyset"
	RejectedQuoteState       RequestRejectedReason = "quote_state"
	RejectedUnknown          RequestRejectedReason = "other"
)

type mintPromMetrics struct {
	mintUpUnixSeconds    prometheus.Gauge
	signaturesIssued     prometheus.Counter
	proofsSpent          prometheus.Counter
	amountIssued         prometheus.Counter
	amountRedeemed       prometheus.Counter
	rejectedRequestCount *prometheus.CounterVec
	meltCount            *prometheus.CounterVec
	mintQuoteCount       prometheus.Counter
	spentSetSize         prometheus.Gauge
	pendingProofs        prometheus.Gauge
	loadedKeysets        prometheus.Gauge
	rpcDuration          *prometheus.HistogramVec
	panicCount           prometheus.Counter
}

func newMintPromMetrics() *mintPromMetrics {
	return &mintPromMetrics{
		mintUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "veilmint_up_timestamp_unix_seconds",
				Help: "Unix timestamp at which the mint started",
			},
		),
		signaturesIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "veilmint_signatures_issued_count",
				Help: "The total number of blind signatures issued",
			},
		),
		proofsSpent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "veilmint_proofs_spent_count",
				Help: "The total number of proofs admitted to the spent set",
			},
		),
		amountIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "veilmint_amount_issued_total",
				Help: "The total token value issued across all signatures",
			},
		),
		amountRedeemed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "veilmint_amount_redeemed_total",
				Help: "The total token value invalidated through redeem, split and melt",
			},
		),
		rejectedRequestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veilmint_rejected_request_count",
				Help: "The total number of rejected requests",
			},
			[]string{"reason"},
		),
		meltCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "veilmint_melt_count",
				Help: "The total number of melt attempts",
			},
			[]string{"result"},
		),
		mintQuoteCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "veilmint_mint_quote_count",
				Help: "The total number of mint quotes created",
			},
		),
		spentSetSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "veilmint_spent_set_size",
				Help: "The current number of secrets in the spent set",
			},
		),
		pendingProofs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "veilmint_pending_proofs",
				Help: "Number of proofs locked by in-flight melts",
			},
		),
		loadedKeysets: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "veilmint_loaded_keysets",
				Help: "Number of keysets loaded by the mint",
			},
		),
		rpcDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "veilmint_rpc_duration_seconds",
				Help: "Duration in seconds of RPC method calls",
			},
			[]string{"method"},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "veilmint_panic_count",
				Help: "The total number of recovered panics",
			},
		),
	}
}

var mintMetrics *mintPromMetrics

// InitMetrics initializes metrics for the mint but does not expose them yet
func InitMetrics() {
	mintMetrics = newMintPromMetrics()
	mintMetrics.mintUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(router *mux.Router) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	router.Handle("/metrics", promhttp.Handler())
}

func RecordSignaturesIssued(count int, amount uint64) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.signaturesIssued.Add(float64(count))
	mintMetrics.amountIssued.Add(float64(amount))
}

func RecordProofsSpent(count int, amount uint64) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.proofsSpent.Add(float64(count))
	mintMetrics.amountRedeemed.Add(float64(amount))
}

func RecordRejectedRequest(reason RequestRejectedReason) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.rejectedRequestCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func RecordMelt(result string) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.meltCount.With(prometheus.Labels{
		"result": result,
	}).Inc()
}

func IncreaseMintQuoteCount() {
	if mintMetrics == nil {
		return
	}
	mintMetrics.mintQuoteCount.Inc()
}

func SetSpentSetSize(size int) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.spentSetSize.Set(float64(size))
}

func SetPendingProofs(count int) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.pendingProofs.Set(float64(count))
}

func SetLoadedKeysets(count int) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.loadedKeysets.Set(float64(count))
}

func ObserveRPCDuration(method string, duration time.Duration) {
	if mintMetrics == nil {
		return
	}
	mintMetrics.rpcDuration.With(prometheus.Labels{
		"method": method,
	}).Observe(duration.Seconds())
}

func IncreasePanicCount() {
	if mintMetrics == nil {
		return
	}
	mintMetrics.panicCount.Inc()
}
