package httptransport

import (
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"mfrid/internal/platform/metrics"
	"mfrid/pkg/testutil"
)

type pingGroup struct{}

func (pingGroup) Register(r chi.Router) {
	r.Get("/api/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncrementResolution("success")
	router := NewRouter(reg, pingGroup{})

	t.Run("metrics are exposed", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		testutil.AssertStatusOK(t, rr)
		assert.True(t, strings.Contains(rr.Body.String(), "mfr_identity_resolutions_total"))
	})

	t.Run("route groups are mounted with CORS", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/ping"))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
		assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown routes get the failure envelope", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/nope"))
		testutil.AssertFailure(t, rr, http.StatusNotFound, "Not found")
	})
}
