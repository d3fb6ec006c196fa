package interfaces

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"nexus-promotion/internal/service/promotion/application"
	"nexus-promotion/internal/service/promotion/domain"
	"nexus-promotion/internal/service/promotion/domain/conflict"
	"nexus-promotion/internal/service/promotion/infrastructure"
)

const catalogYAML = `
offers:
  - id: bogo-tees
    type: buy_x_get_y
    scope: item
    status: active
    priority: 1
    current_version:
      id: bogo-tees-v1
      version: 1
      benefit:
        buy_x_get_y: {buy_qty: 1, get_qty: 1}
      filters:
        include_categories: [tees]
  - id: big-spender
    type: flat_discount
    scope: cart
    status: active
    priority: 2
    current_version:
      id: big-spender-v1
      version: 1
      benefit:
        flat: {amount: 50}
      rules:
        logic: all
        children:
          - rule: {field: cart.subtotal, operator: gte, value: 500, label: Cart subtotal}
experiments:
  - id: exp-1
    status: running
    traffic_percent: 100
    variants:
      - {id: only, weight: 1, offer_ids: [bogo-tees]}
`

func newServer(t *testing.T) (*httptest.Server, *infrastructure.MemoryEventLog) {
	t.Helper()
	catalog, err := infrastructure.ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	repo := infrastructure.NewMemoryCatalog(catalog)
	events := infrastructure.NewMemoryEventLog()
	svc := application.NewPromotionService(repo, repo, infrastructure.NewMemoryAssignmentStore(), events,
		conflict.BudgetOptions{}, noop.NewTracerProvider().Tracer("test"))

	mux := http.NewServeMux()
	NewPromotionHandler(svc, time.Second).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, events
}

func post(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEvaluateEndpoint(t *testing.T) {
	srv, events := newServer(t)

	resp := post(t, srv.URL+"/promotions/evaluate", map[string]interface{}{
		"cart": map[string]interface{}{
			"id": "c-1",
			"lines": []map[string]interface{}{
				{"id": "l1", "sku": "TEE", "unit_price": 100, "quantity": 2, "category": "tees"},
			},
		},
		"user": map[string]interface{}{"id": "u-1"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out application.EvaluateCartResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{"bogo-tees"}, out.Evaluation.ApplicableOffers)
	require.Len(t, out.Evaluation.PotentialOffers, 1)
	assert.Equal(t, "big-spender", out.Evaluation.PotentialOffers[0].OfferID)
	assert.Contains(t, out.Evaluation.PotentialOffers[0].MissingConditions[0], "500")
	assert.InDelta(t, 100.0, out.Resolution.TotalDiscount, 1e-9)
	assert.InDelta(t, 100.0, out.FinalTotal, 1e-9)
	assert.Equal(t, "only", out.Assignments["exp-1"])
	assert.Len(t, events.Exposures(), 1)
}

func TestEvaluateEndpoint_Errors(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/promotions/evaluate")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/promotions/evaluate", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	missingCart := post(t, srv.URL+"/promotions/evaluate", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, missingCart.StatusCode)

	oversized := post(t, srv.URL+"/promotions/evaluate", map[string]interface{}{
		"cart": map[string]interface{}{
			"id": "c1",
			"lines": []map[string]interface{}{
				{"id": "l1", "sku": "TEE", "unit_price": 1, "quantity": 1000000000, "category": "tees"},
			},
		},
	})
	assert.Equal(t, http.StatusBadRequest, oversized.StatusCode)
}

func TestExperimentEndpoints(t *testing.T) {
	srv, events := newServer(t)

	notFound := post(t, srv.URL+"/experiments/assign", application.AssignVariantRequest{ExperimentID: "nope", Identifier: "u"})
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)

	noAssignment := post(t, srv.URL+"/experiments/exposure", application.RecordExposureRequest{ExperimentID: "exp-1", Identifier: "u"})
	assert.Equal(t, http.StatusNotFound, noAssignment.StatusCode)

	assigned := post(t, srv.URL+"/experiments/assign", application.AssignVariantRequest{ExperimentID: "exp-1", Identifier: "u"})
	require.Equal(t, http.StatusOK, assigned.StatusCode)
	var av application.AssignVariantResponse
	require.NoError(t, json.NewDecoder(assigned.Body).Decode(&av))
	require.NotNil(t, av.Variant)
	assert.Equal(t, "only", av.Variant.ID)

	exposure := post(t, srv.URL+"/experiments/exposure", application.RecordExposureRequest{ExperimentID: "exp-1", Identifier: "u", OfferIDs: []string{"bogo-tees"}})
	assert.Equal(t, http.StatusAccepted, exposure.StatusCode)
	require.Len(t, events.Exposures(), 1)
	assert.Equal(t, "only", events.Exposures()[0].VariantID)

	conversion := post(t, srv.URL+"/experiments/conversion", application.RecordConversionRequest{Identifier: "u", OrderID: "o-1", Revenue: 100})
	require.Equal(t, http.StatusAccepted, conversion.StatusCode)
	var cr application.RecordConversionResponse
	require.NoError(t, json.NewDecoder(conversion.Body).Decode(&cr))
	assert.Equal(t, 1, cr.Recorded)

	invalid := post(t, srv.URL+"/experiments/conversion", application.RecordConversionRequest{})
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrOfferNotFound, http.StatusNotFound},
		{domain.ErrExperimentNotFound, http.StatusNotFound},
		{domain.ErrAssignmentConflict, http.StatusConflict},
		{assertErr("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(t.Context(), rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func TestWriteError_TraceHeader(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, Remote: true})
	ctx := trace.ContextWithRemoteSpanContext(t.Context(), sc)

	rec := httptest.NewRecorder()
	writeError(ctx, rec, domain.ErrOfferNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, traceID.String(), rec.Header().Get("X-Trace-Id"))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
