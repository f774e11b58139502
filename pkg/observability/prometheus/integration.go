package prometheus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/fluxorio/conduit/pkg/channel"
)

// Handler returns a fasthttp handler serving DefaultRegistry in the
// Prometheus text exposition format
func Handler() fasthttp.RequestHandler {
	return HandlerFor(DefaultRegistry)
}

// HandlerFor returns a fasthttp handler serving the given registry
func HandlerFor(registry *prometheus.Registry) fasthttp.RequestHandler {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

// ResultLabel maps a channel operation error to its ops_total result label
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, channel.ErrFull):
		return "full"
	case errors.Is(err, channel.ErrEmpty):
		return "empty"
	case errors.Is(err, channel.ErrTimeout):
		return "timeout"
	case errors.Is(err, channel.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
