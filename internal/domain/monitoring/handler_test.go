package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/healthmetrics/internal/domain/metrics"
	"github.com/ehr/healthmetrics/internal/platform/auth"
	"github.com/ehr/healthmetrics/internal/platform/cache"
)

func newTestHandler(r *mockReader, ttl time.Duration) (*Handler, *cache.MemoryStore, *echo.Echo) {
	store := cache.NewMemoryStore()
	h := NewHandler(newTestEngine(r), store, ttl, zerolog.Nop())
	h.now = func() time.Time { return testNow }
	return h, store, echo.New()
}

func getAs(target, user string, roles ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(auth.WithIdentity(req.Context(), user, roles))
}

func TestHandler_SubjectStatus(t *testing.T) {
	r := &mockReader{}
	id := uuid.New()
	r.add(id, metrics.HeartRate, 180, testNow.Add(-time.Hour))
	h, _, e := newTestHandler(r, 0)

	rec := httptest.NewRecorder()
	c := e.NewContext(getAs("/", id.String(), auth.RolePatient), rec)
	c.SetParamNames("subject_id")
	c.SetParamValues(id.String())

	if err := h.SubjectStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st SubjectHealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != StatusCritical {
		t.Errorf("expected critical, got %s", st.Status)
	}
}

func TestHandler_SubjectStatus_OtherPatientForbidden(t *testing.T) {
	h, _, e := newTestHandler(&mockReader{}, 0)
	c := e.NewContext(getAs("/", uuid.New().String(), auth.RolePatient), httptest.NewRecorder())
	c.SetParamNames("subject_id")
	c.SetParamValues(uuid.New().String())

	err := h.SubjectStatus(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHandler_FleetRollup_Cached(t *testing.T) {
	r := &mockReader{}
	id := uuid.New()
	r.add(id, metrics.Glucose, 90, testNow.Add(-time.Hour))
	h, store, e := newTestHandler(r, 30*time.Second)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		c := e.NewContext(getAs("/?period=day&subject_ids="+id.String(), "", auth.RoleProvider), rec)
		if err := h.FleetRollup(c); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if store.Len() != 1 {
		t.Errorf("expected one cached rollup, got %d", store.Len())
	}
	// ListSubjects is skipped for explicit ids; one rollup issues two reads.
	if r.calls != 2 {
		t.Errorf("expected the second request to be served from cache, store saw %d calls", r.calls)
	}
}

func TestHandler_FleetRollup_BadPeriod(t *testing.T) {
	h, _, e := newTestHandler(&mockReader{}, 0)
	c := e.NewContext(getAs("/?period=decade", "", auth.RoleProvider), httptest.NewRecorder())

	err := h.FleetRollup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_FleetRollup_BadSubjectID(t *testing.T) {
	h, _, e := newTestHandler(&mockReader{}, 0)
	c := e.NewContext(getAs("/?subject_ids=abc", "", auth.RoleProvider), httptest.NewRecorder())

	err := h.FleetRollup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_FleetRollup_Unavailable(t *testing.T) {
	r := &mockReader{failing: errors.New("connection refused")}
	h, store, e := newTestHandler(r, 30*time.Second)
	c := e.NewContext(getAs("/?period=week", "", auth.RoleProvider), httptest.NewRecorder())

	err := h.FleetRollup(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	body, _ := he.Message.(map[string]interface{})
	if body["retryable"] != true {
		t.Errorf("expected retryable body, got %v", he.Message)
	}
	if store.Len() != 0 {
		t.Error("failures must not be cached")
	}
}

func TestRollupKey_OrderInsensitive(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	w := Window{Start: testNow.Add(-time.Hour), End: testNow}
	if rollupKey([]uuid.UUID{a, b}, w) != rollupKey([]uuid.UUID{b, a, a}, w) {
		t.Error("key should not depend on subject order or duplicates")
	}
	if rollupKey(nil, w) == rollupKey([]uuid.UUID{a}, w) {
		t.Error("all-subject key must differ from a single-subject key")
	}
}
