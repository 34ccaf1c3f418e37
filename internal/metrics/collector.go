// internal/metrics/collector.go
package metrics

import (
	"context"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

// MetricType identifies one registered metric.
type MetricType string

const (
	PurchaseCounterType    MetricType = "purchase_counter"
	CurrentCapGaugeType    MetricType = "current_cap"
	FeeCounterType         MetricType = "fee_counter"
	BridgeCounterType      MetricType = "bridge_counter"
	PoolReservesGaugeType  MetricType = "pool_reserves"
	SpotPriceGaugeType     MetricType = "spot_price"
	OperationDurationType  MetricType = "operation_duration"
)

var (
	purchaseCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trophy",
			Name:      "purchases_total",
			Help:      "Total number of purchase attempts",
		},
		[]string{"status"},
	)

	currentCapGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trophy",
			Name:      "sale_current_cap",
			Help:      "Accepted contributions in whole native units",
		},
	)

	feeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trophy",
			Name:      "fees_collected_total",
			Help:      "Fee token amounts collected, in whole tokens",
		},
		[]string{"destination"},
	)

	bridgeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trophy",
			Name:      "liquidity_bridges_total",
			Help:      "Total number of liquidity bridge runs",
		},
		[]string{"status"},
	)

	poolReservesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "trophy",
			Name:      "pool_reserves",
			Help:      "Current pool reserves per side",
		},
		[]string{"side"},
	)

	spotPriceGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trophy",
			Name:      "pool_spot_price",
			Help:      "Native per token at current reserves",
		},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trophy",
			Name:      "operation_duration_seconds",
			Help:      "Ledger and sale operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
		[]string{"operation"},
	)
)

// Collector owns the metric set and the bus subscriptions feeding it.
type Collector struct {
	metrics sync.Map
	subs    []events.Subscription
	logger  *zap.Logger
}

// NewCollector registers all metrics with the default registry.
func NewCollector(logger *zap.Logger) *Collector {
	c := &Collector{logger: logger.Named("metrics")}
	c.initializeMetrics()
	return c
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		PurchaseCounterType:   purchaseCounter,
		CurrentCapGaugeType:   currentCapGauge,
		FeeCounterType:        feeCounter,
		BridgeCounterType:     bridgeCounter,
		PoolReservesGaugeType: poolReservesGauge,
		SpotPriceGaugeType:    spotPriceGauge,
		OperationDurationType: operationDuration,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		if err := prometheus.Register(metric); err != nil {
			// Re-registration happens across tests; keep the existing one.
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				c.metrics.Store(metricType, are.ExistingCollector)
				continue
			}
			c.logger.Error("Failed to register metric",
				zap.String("metric", string(metricType)), zap.Error(err))
		}
	}
}

// Reset zeroes all vector metrics, useful in tests.
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

// Attach subscribes the collector to the event bus so that sale and
// ledger activity feeds the metrics without any calls in the hot path.
func (c *Collector) Attach(bus *events.Bus) {
	c.subs = append(c.subs,
		bus.SubscribeFunc(events.PurchaseAccepted, c.onPurchase),
		bus.SubscribeFunc(events.FeeCollected, c.onFee),
		bus.SubscribeFunc(events.LiquidityBridged, c.onBridge),
		bus.SubscribeFunc(events.LiquidityBridgeFailed, c.onBridgeFailure),
		bus.SubscribeFunc(events.PriceUpdated, c.onPrice),
	)
}

// Detach removes the bus subscriptions.
func (c *Collector) Detach() {
	for _, s := range c.subs {
		s.Unsubscribe()
	}
	c.subs = nil
}

func (c *Collector) onPurchase(_ context.Context, event events.Event) error {
	ev, ok := event.(*events.PurchaseAcceptedEvent)
	if !ok {
		return nil
	}
	purchaseCounter.WithLabelValues("accepted").Inc()
	currentCapGauge.Set(unitsFloat(ev.CurrentCap))
	return nil
}

func (c *Collector) onFee(_ context.Context, event events.Event) error {
	ev, ok := event.(*events.FeeCollectedEvent)
	if !ok {
		return nil
	}
	feeCounter.WithLabelValues("burn").Add(unitsFloat(ev.Burned))
	feeCounter.WithLabelValues("liquidity").Add(unitsFloat(ev.Liquidity))
	recipients := unitsFloat(ev.Fee) - unitsFloat(ev.Burned) - unitsFloat(ev.Liquidity)
	if recipients > 0 {
		feeCounter.WithLabelValues("recipients").Add(recipients)
	}
	return nil
}

func (c *Collector) onBridge(_ context.Context, event events.Event) error {
	if _, ok := event.(*events.LiquidityBridgedEvent); !ok {
		return nil
	}
	bridgeCounter.WithLabelValues("success").Inc()
	return nil
}

func (c *Collector) onBridgeFailure(_ context.Context, event events.Event) error {
	if _, ok := event.(*events.LiquidityBridgeFailedEvent); !ok {
		return nil
	}
	c.RecordBridgeFailure()
	return nil
}

func (c *Collector) onPrice(_ context.Context, event events.Event) error {
	ev, ok := event.(*events.PriceUpdatedEvent)
	if !ok {
		return nil
	}
	poolReservesGauge.WithLabelValues("token").Set(unitsFloat(ev.ReserveToken))
	poolReservesGauge.WithLabelValues("native").Set(unitsFloat(ev.ReserveNative))
	spotPriceGauge.Set(unitsFloat(ev.PriceNative))
	return nil
}

// RecordBridgeFailure counts a swallowed bridge error.
func (c *Collector) RecordBridgeFailure() {
	bridgeCounter.WithLabelValues("failure").Inc()
}

// RecordRejectedPurchase counts a rejected purchase attempt.
func (c *Collector) RecordRejectedPurchase() {
	purchaseCounter.WithLabelValues("rejected").Inc()
}

// MeasureOperation times f and records its duration under the given
// operation label.
func (c *Collector) MeasureOperation(operation string, f func() error) error {
	start := time.Now()
	err := f()
	operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}

// Serve exposes /metrics on addr until ctx is canceled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	c.logger.Info("Metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// unitsFloat converts an 18-dec fixed-point amount to whole units,
// accepting float truncation for gauge purposes.
func unitsFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f / 1e18
}
