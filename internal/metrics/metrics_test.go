package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObserveKeyRefresh(t *testing.T) {
	before := testutil.ToFloat64(WbiKeyRefreshes.WithLabelValues("error"))
	ObserveKeyRefresh(errors.New("x"), time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(WbiKeyRefreshes.WithLabelValues("error")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	ObserveUpstream("/x/web-interface/view", "ok", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "biliproxy_upstream_requests_total"))
}
