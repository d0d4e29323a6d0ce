package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/healthmetrics/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func requestAs(method, target, body, user string, roles ...string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), user, roles))
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_IngestSample(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	req := requestAs(http.MethodPost, "/", `{"metric_type":"heart_rate","value":88}`, subject.String(), auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("subject_id")
	c.SetParamValues(subject.String())

	if err := h.IngestSample(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var s Sample
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.SubjectID != subject || s.Unit != "bpm" {
		t.Errorf("unexpected sample %+v", s)
	}
}

func TestHandler_IngestSample_InvalidMetricType(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	req := requestAs(http.MethodPost, "/", `{"metric_type":"karma","value":1}`, subject.String(), auth.RolePatient)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("subject_id")
	c.SetParamValues(subject.String())

	if code := statusOf(t, h.IngestSample(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_IngestSample_NonNumericValue(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	req := requestAs(http.MethodPost, "/", `{"metric_type":"glucose","value":"abc"}`, subject.String(), auth.RolePatient)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("subject_id")
	c.SetParamValues(subject.String())

	err := h.IngestSample(c)
	if code := statusOf(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if msg := err.(*echo.HTTPError).Message; msg != ErrInvalidValue.Error() {
		t.Errorf("expected %q, got %v", ErrInvalidValue.Error(), msg)
	}
}

func TestHandler_IngestSample_OtherSubjectForbidden(t *testing.T) {
	h, e := newTestHandler()
	req := requestAs(http.MethodPost, "/", `{"metric_type":"steps","value":10}`, uuid.New().String(), auth.RolePatient)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("subject_id")
	c.SetParamValues(uuid.New().String())

	if code := statusOf(t, h.IngestSample(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandler_ListSamples_ProviderAccess(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	h.svc.Ingest(nil, IngestRequest{SubjectID: subject, MetricType: "glucose", Value: ptr(99.0)})
	h.svc.Ingest(nil, IngestRequest{SubjectID: subject, MetricType: "steps", Value: ptr(5000.0)})

	req := requestAs(http.MethodGet, "/?metric_type=glucose", "", uuid.New().String(), auth.RoleProvider)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("subject_id")
	c.SetParamValues(subject.String())

	if err := h.ListSamples(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Sample `json:"data"`
		Total int      `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].MetricType != Glucose {
		t.Errorf("expected one glucose sample, got %+v", body)
	}
}

func TestHandler_ListSamples_BadTime(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	req := requestAs(http.MethodGet, "/?start=yesterday", "", subject.String(), auth.RolePatient)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("subject_id")
	c.SetParamValues(subject.String())

	if code := statusOf(t, h.ListSamples(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_DeleteSample(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	s, _ := h.svc.Ingest(nil, IngestRequest{SubjectID: subject, MetricType: "weight", Value: ptr(70.0)})

	req := requestAs(http.MethodDelete, "/", "", subject.String(), auth.RolePatient)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("subject_id", "id")
	c.SetParamValues(subject.String(), s.ID.String())

	if err := h.DeleteSample(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_DeleteSample_ProviderCannotDelete(t *testing.T) {
	h, e := newTestHandler()
	subject := uuid.New()
	s, _ := h.svc.Ingest(nil, IngestRequest{SubjectID: subject, MetricType: "weight", Value: ptr(70.0)})

	req := requestAs(http.MethodDelete, "/", "", uuid.New().String(), auth.RoleProvider)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("subject_id", "id")
	c.SetParamValues(subject.String(), s.ID.String())

	if code := statusOf(t, h.DeleteSample(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
}

func TestHandler_ListMetricTypes(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(requestAs(http.MethodGet, "/", "", "", auth.RoleProvider), rec)

	if err := h.ListMetricTypes(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var views []struct {
		Type  MetricType  `json:"type"`
		Range *RangeEntry `json:"range"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(views) != 17 {
		t.Errorf("expected 17 metric types, got %d", len(views))
	}
	for _, v := range views {
		if v.Type == Steps && v.Range != nil {
			t.Error("steps should have no range")
		}
		if v.Type == Glucose && (v.Range == nil || v.Range.Max != 100) {
			t.Errorf("unexpected glucose range %+v", v.Range)
		}
	}
}
