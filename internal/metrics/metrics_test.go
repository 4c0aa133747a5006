package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordInbound(t *testing.T) {
	before := testutil.ToFloat64(inboundTotal.WithLabelValues("dropped"))
	RecordInbound(false)
	assert.Equal(t, before+1, testutil.ToFloat64(inboundTotal.WithLabelValues("dropped")))
}

func TestRecordDelivery(t *testing.T) {
	ok := testutil.ToFloat64(deliveriesTotal.WithLabelValues("success"))
	failed := testutil.ToFloat64(deliveriesTotal.WithLabelValues("failure"))

	RecordDelivery(true, 20*time.Millisecond)
	RecordDelivery(false, time.Second)

	assert.Equal(t, ok+1, testutil.ToFloat64(deliveriesTotal.WithLabelValues("success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(deliveriesTotal.WithLabelValues("failure")))
}

func TestRecordBackup(t *testing.T) {
	before := testutil.ToFloat64(backupsTotal.WithLabelValues("restore", "failure"))
	RecordBackup("restore", errors.New("hash mismatch"))
	assert.Equal(t, before+1, testutil.ToFloat64(backupsTotal.WithLabelValues("restore", "failure")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Delete("/api/webhooks/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodDelete, "/api/webhooks/{id}", "404"))

	req := httptest.NewRequest(http.MethodDelete, "/api/webhooks/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodDelete, "/api/webhooks/{id}", "404")))
}

func TestHandlerServesMetrics(t *testing.T) {
	RecordInbound(true)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "relay_inbound_messages_total")
}
