package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InstallsCompleted counts successful token exchanges.
	InstallsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_installs_completed_total",
		Help: "Number of completed OAuth token exchanges.",
	})

	// ChargesActivated counts recurring charges confirmed as active.
	ChargesActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_charges_activated_total",
		Help: "Number of recurring charges confirmed active.",
	})

	// ExportRequests counts order export requests served.
	ExportRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_export_requests_total",
		Help: "Number of order CSV exports served.",
	})

	// ExportRows counts CSV data rows emitted across all exports.
	ExportRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_export_rows_total",
		Help: "Number of CSV rows emitted across all exports.",
	})

	// OrderPagesFetched counts upstream order listing pages fetched.
	OrderPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopify_order_pages_fetched_total",
		Help: "Number of order listing pages fetched from Shopify.",
	})
)

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
