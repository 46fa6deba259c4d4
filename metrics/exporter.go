package metrics

import (
	"net/http"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/gorilla/mux"
	logging "github.com/ipfs/go-log/v2"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opencensus.io/stats/view"
	"golang.org/x/xerrors"
)

var log = logging.Logger("metrics")

// Exporter registers the default views and returns the metrics and health
// endpoints served next to the command listener.
func Exporter(namespace string) (http.Handler, error) {
	if err := view.Register(DefaultViews...); err != nil {
		return nil, xerrors.Errorf("registering views: %w", err)
	}

	registry := promclient.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	exporter, err := prometheus.NewExporter(prometheus.Options{
		Registry:  registry,
		Namespace: namespace,
		OnError: func(err error) {
			log.Errorw("prometheus exporter", "error", err)
		},
	})
	if err != nil {
		return nil, xerrors.Errorf("creating prometheus exporter: %w", err)
	}

	m := mux.NewRouter()
	m.Handle("/debug/metrics", exporter)
	m.HandleFunc("/health/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return m, nil
}
