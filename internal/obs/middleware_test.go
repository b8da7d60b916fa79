package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatusRecorder(t *testing.T) {
	rec := NewStatusRecorder(httptest.NewRecorder())
	require.Equal(t, http.StatusOK, rec.Status())

	rec.WriteHeader(http.StatusConflict)
	n, err := rec.Write([]byte("conflict"))
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, http.StatusConflict, rec.Status())
	require.EqualValues(t, 8, rec.BytesWritten())
}

func TestHTTPObsMiddlewareCountsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("testns", nil, reg)

	handler := HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payu", nil)
	req = req.WithContext(WithRoutePattern(req.Context(), "/api/v1/webhooks/payu"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/webhooks/payu", "202"))
	require.EqualValues(t, 1, count)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, ParseBucketsCSV("  "))
	require.Equal(t, []float64{5, 50, 500}, ParseBucketsCSV("5, 50,500"))
	require.Equal(t, []float64{10}, ParseBucketsCSV("10,abc,-3,0"))
}

func TestRoutePatternContext(t *testing.T) {
	require.Equal(t, "", RoutePatternFromContext(nil))
	ctx := WithRoutePattern(nil, "/orders/{id}")
	require.Equal(t, "/orders/{id}", RoutePatternFromContext(ctx))
}
