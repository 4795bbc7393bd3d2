package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveGuardDecision(t *testing.T) {
	before := testutil.ToFloat64(guardDecisionsTotal.WithLabelValues("forbidden_keyword"))
	ObserveGuardDecision("forbidden_keyword")
	assert.Equal(t, before+1, testutil.ToFloat64(guardDecisionsTotal.WithLabelValues("forbidden_keyword")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveQuery(10*time.Millisecond, errors.New("boom"))
	ObserveClassification("structured", false)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "querybot_query_duration_seconds")
	assert.Contains(t, body, `querybot_classifications_total{fallback="false",kind="structured"}`)
}
