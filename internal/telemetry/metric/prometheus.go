package metric

import (
	"bufio"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// ContentType is the media type of Render output.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Registry holds the sidecar metrics and renders them as Prometheus text.
type Registry struct {
	registry *prometheus.Registry

	// RequestsTotal counts answered requests by route and status code.
	RequestsTotal *prometheus.CounterVec
}

// NewRegistry creates a registry holding the request counter and the given
// collectors.
func NewRegistry(collectors ...prometheus.Collector) *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "admin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests answered by the admin server.",
		}, []string{"route", "code"}),
	}

	r.registry.MustRegister(r.RequestsTotal)
	r.registry.MustRegister(collectors...)
	return r
}

// ObserveRequest records an answered request.
func (r *Registry) ObserveRequest(route string, code int) {
	r.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Render gathers all metrics and writes them in text exposition format.
// Sample values are printed in plain decimal.
//
// Families that fail to gather are skipped; the remaining ones are still
// written, so a partially failed scrape yields a partial report.
func (r *Registry) Render(w io.Writer) error {
	mfs, gatherErr := r.registry.Gather()

	bw := bufio.NewWriter(w)
	for _, mf := range mfs {
		if err := writeFamily(bw, mf); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return gatherErr
}
