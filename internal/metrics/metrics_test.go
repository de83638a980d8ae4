package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSync(t *testing.T) {
	okBefore := testutil.ToFloat64(RemoteSyncs.WithLabelValues("test", ResultOK))
	errBefore := testutil.ToFloat64(RemoteSyncs.WithLabelValues("test", ResultError))

	RecordSync("test", nil)
	RecordSync("test", errors.New("boom"))
	RecordSync("test", errors.New("boom"))

	if got := testutil.ToFloat64(RemoteSyncs.WithLabelValues("test", ResultOK)) - okBefore; got != 1 {
		t.Errorf("ok delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RemoteSyncs.WithLabelValues("test", ResultError)) - errBefore; got != 2 {
		t.Errorf("error delta = %v, want 2", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTP("/api/preview", http.MethodGet, http.StatusOK, 15*time.Millisecond)
	ChallengesCreated.WithLabelValues("random").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"envelopes_http_request_duration_seconds",
		"envelopes_challenge_created_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
