package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})
	require.Empty(t, exp.Render())
}

func TestRenderCountersAndHistograms(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:     7,
				authcore.MetricRefreshRotated:   2,
				authcore.MetricPermissionDenied: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	require.Contains(t, out, "authcore_login_success_total 7\n")
	require.Contains(t, out, "authcore_refresh_rotated_total 2\n")
	require.Contains(t, out, "authcore_permission_denied_total 1\n")
	require.Contains(t, out, "authcore_logout_total 0\n")
	require.Contains(t, out, `authcore_validate_latency_seconds_bucket{le="0.005"} 1`)
	require.Contains(t, out, `authcore_validate_latency_seconds_bucket{le="+Inf"} 36`)
	require.Contains(t, out, "authcore_validate_latency_seconds_count 36\n")
	require.NotContains(t, out, "authcore_login_latency_seconds")
	require.Contains(t, out, "authcore_audit_dropped_total 2\n")
	require.Equal(t, out, exp.Render())
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	require.Contains(t, rec.Body.String(), "authcore_login_success_total 1")
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:       1000,
				authcore.MetricLoginFailure:       40,
				authcore.MetricRefreshSuccess:     800,
				authcore.MetricSessionCreated:     800,
				authcore.MetricSessionInvalidated: 20,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
				authcore.MetricLoginLatency:    {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
