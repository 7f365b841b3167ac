package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prom implements Metrics on a prometheus registry. All durations are
// reported in milliseconds.
type Prom struct {
	checkout    *prometheus.HistogramVec
	httpDur     *prometheus.HistogramVec
	downstream  *prometheus.HistogramVec
	dispatch    *prometheus.HistogramVec
	circuitOpen *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func NewProm(reg prometheus.Registerer) *Prom {
	f := promauto.With(reg)
	return &Prom{
		checkout: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "order_engine",
			Name:      "checkout_duration_ms",
			Help:      "Checkout latency by outcome.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"outcome"}),
		httpDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "order_engine",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route", "status"}),
		downstream: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "order_engine",
			Name:      "downstream_call_duration_ms",
			Help:      "Per-attempt downstream call latency.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"target", "ok"}),
		dispatch: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "order_engine",
			Name:      "notification_attempt_duration_ms",
			Help:      "Notification attempt latency by channel and outcome.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"channel", "outcome"}),
		circuitOpen: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "order_engine",
			Name:      "circuit_open_rejections_total",
			Help:      "Calls rejected fail-fast by an open breaker.",
		}, []string{"target"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "order_engine",
			Name:      "cart_cache_hits_total",
			Help:      "Cart cache hits.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: "order_engine",
			Name:      "cart_cache_misses_total",
			Help:      "Cart cache misses (including expired entries).",
		}),
	}
}

func (p *Prom) ObserveCheckout(outcome string, durMs float64) {
	p.checkout.WithLabelValues(outcome).Observe(durMs)
}

func (p *Prom) ObserveHTTP(method, route string, status int, durMs float64) {
	p.httpDur.WithLabelValues(method, route, strconv.Itoa(status)).Observe(durMs)
}

func (p *Prom) ObserveDownstream(target string, ok bool, durMs float64) {
	p.downstream.WithLabelValues(target, strconv.FormatBool(ok)).Observe(durMs)
}

func (p *Prom) ObserveDispatch(channel, outcome string, durMs float64) {
	p.dispatch.WithLabelValues(channel, outcome).Observe(durMs)
}

func (p *Prom) IncCircuitOpen(target string) {
	p.circuitOpen.WithLabelValues(target).Inc()
}

func (p *Prom) IncCacheHit()  { p.cacheHits.Inc() }
func (p *Prom) IncCacheMiss() { p.cacheMisses.Inc() }
