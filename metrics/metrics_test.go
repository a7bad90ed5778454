package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTransition(t *testing.T) {
	c := qt.New(t)
	before := testutil.ToFloat64(Transitions.WithLabelValues("deposit", OutcomeOK))
	ObserveTransition("deposit", OutcomeOK, time.Now().Add(-time.Second))
	ObserveTransition("deposit", OutcomeFailed, time.Now())
	c.Assert(testutil.ToFloat64(Transitions.WithLabelValues("deposit", OutcomeOK)), qt.Equals, before+1)
	c.Assert(testutil.ToFloat64(Transitions.WithLabelValues("deposit", OutcomeFailed)) >= 1, qt.IsTrue)
}

func TestHandler(t *testing.T) {
	c := qt.New(t)
	Joins.Inc()
	ObserveProof("withdraw", time.Now())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	c.Assert(err, qt.IsNil)
	c.Assert(strings.Contains(string(body), "escrow_joins_total"), qt.IsTrue)
	c.Assert(strings.Contains(string(body), `escrow_proof_duration_seconds_count{circuit="withdraw"}`), qt.IsTrue)
}
