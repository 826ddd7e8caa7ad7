package health

import (
	"net/http"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
)

// CatalogSource reports the currently published catalog, nil before the first
// successful load.
type CatalogSource interface {
	Get() *tle.Catalog
}

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readyz returns a handler that reports 200 "ready\n" once a catalog has been
// published and 503 until then. A stale catalog is still ready: queries are
// answered from it while refreshes keep failing.
func Readyz(catalogs CatalogSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if catalogs.Get() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("no catalog loaded\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
	}
}
