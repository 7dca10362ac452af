/*
Package metrics exposes Prometheus collectors for the stock engine.

PURPOSE:
  Counts the write operations (stock-ins, consumptions by reason,
  rejections) and mirrors the notification snapshot into gauges so a
  dashboard can alert on low/out-of-stock without polling the API.

USAGE:
  m := metrics.New()
  r.Handle("/metrics", m.Handler())
  m.ObserveSnapshot(bus.Snapshot())
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brewkeep/stockroom/stock"
)

// Collector owns the registry and the individual metrics.
type Collector struct {
	registry *prometheus.Registry

	stockIns          prometheus.Counter
	consumptions      *prometheus.CounterVec
	shortfalls        prometheus.Counter
	lockTimeouts      prometheus.Counter
	batchesExpired    prometheus.Counter
	lowStockGauge     prometheus.Gauge
	outOfStockGauge   prometheus.Gauge
	expiringGauge     prometheus.Gauge
	expiredHeldGauge  prometheus.Gauge
	wsClientsGauge    prometheus.Gauge
}

// New creates a collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		stockIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_stockins_total",
			Help: "Batches created via stock-in",
		}),
		consumptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_consumptions_total",
			Help: "Successful consumption operations by reason",
		}, []string{"reason"}),
		shortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_shortfall_rejections_total",
			Help: "Consumptions rejected for insufficient stock",
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_lock_timeouts_total",
			Help: "Operations rejected after waiting too long for an ingredient lock",
		}),
		batchesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_batches_expired_total",
			Help: "Batches marked expired by the lazy sweep",
		}),
		lowStockGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockroom_ingredients_low_stock",
			Help: "Ingredients at or below their alert threshold",
		}),
		outOfStockGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockroom_ingredients_out_of_stock",
			Help: "Ingredients with zero quantity",
		}),
		expiringGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockroom_ingredients_expiring",
			Help: "Ingredients with a batch expiring within the horizon",
		}),
		expiredHeldGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockroom_ingredients_expired_stock",
			Help: "Ingredients holding stock in expired batches",
		}),
		wsClientsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockroom_ws_clients",
			Help: "Connected websocket subscribers",
		}),
	}

	c.registry.MustRegister(
		c.stockIns,
		c.consumptions,
		c.shortfalls,
		c.lockTimeouts,
		c.batchesExpired,
		c.lowStockGauge,
		c.outOfStockGauge,
		c.expiringGauge,
		c.expiredHeldGauge,
		c.wsClientsGauge,
	)
	return c
}

// Handler serves the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StockIn(batches int) {
	c.stockIns.Add(float64(batches))
}

func (c *Collector) Consumption(reason stock.ConsumptionReason) {
	c.consumptions.WithLabelValues(string(reason)).Inc()
}

func (c *Collector) ShortfallRejected() { c.shortfalls.Inc() }
func (c *Collector) LockTimeout()       { c.lockTimeouts.Inc() }

func (c *Collector) BatchesExpired(n int) {
	c.batchesExpired.Add(float64(n))
}

func (c *Collector) ClientConnected()    { c.wsClientsGauge.Inc() }
func (c *Collector) ClientDisconnected() { c.wsClientsGauge.Dec() }

// ObserveSnapshot mirrors a notification snapshot into the stock-level
// gauges. Call it with every published snapshot; each call replaces the
// previous values, matching the snapshot's replace semantics.
func (c *Collector) ObserveSnapshot(snapshot []stock.Notification) {
	var low, out, expiring, expired int
	for _, n := range snapshot {
		switch n.Type {
		case stock.NotifyLowStock:
			low++
		case stock.NotifyOutOfStock:
			out++
		case stock.NotifyExpiring:
			expiring++
		case stock.NotifyExpired:
			expired++
		}
	}
	c.lowStockGauge.Set(float64(low))
	c.outOfStockGauge.Set(float64(out))
	c.expiringGauge.Set(float64(expiring))
	c.expiredHeldGauge.Set(float64(expired))
}
