package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"myContentLab/business/experiment"
	"myContentLab/domain"

	"github.com/labstack/echo/v4"
)

type stubTrackingService struct {
	impressions []uint
	lastContext experiment.SegmentContext
	assignErr   error
}

func (s *stubTrackingService) TrackImpression(_ context.Context, variantID uint, sc experiment.SegmentContext) error {
	s.impressions = append(s.impressions, variantID)
	s.lastContext = sc
	return nil
}

func (s *stubTrackingService) TrackClick(context.Context, uint) error { return nil }

func (s *stubTrackingService) TrackConversion(context.Context, uint, float64, experiment.SegmentContext) error {
	return nil
}

func (s *stubTrackingService) RecordContinuousMetric(context.Context, uint, string, float64) error {
	return nil
}

func (s *stubTrackingService) GetAssignedVariant(_ context.Context, userID, experimentID uint, sc experiment.SegmentContext) (domain.Variant, error) {
	s.lastContext = sc
	if s.assignErr != nil {
		return domain.Variant{}, s.assignErr
	}
	return domain.Variant{ID: 3, ExperimentID: experimentID}, nil
}

func TestTrackImpression(t *testing.T) {
	stub := &stubTrackingService{}
	handler := NewTrackingHandler(stub)

	body := `{"variant_id": 12, "location": "US", "referral_source": "newsletter"}`
	req := httptest.NewRequest(http.MethodPost, "/track/impression", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	if err := handler.TrackImpression(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(stub.impressions) != 1 || stub.impressions[0] != 12 {
		t.Fatalf("impressions = %v, want [12]", stub.impressions)
	}
	if stub.lastContext.ReferralSource != "newsletter" || stub.lastContext.Location != "US" {
		t.Fatalf("segment context not propagated: %+v", stub.lastContext)
	}
}

func TestTrackImpression_MissingVariant(t *testing.T) {
	stub := &stubTrackingService{}
	handler := NewTrackingHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/track/impression", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	if err := handler.TrackImpression(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(stub.impressions) != 0 {
		t.Fatal("service called despite invalid payload")
	}
}

func TestGetAssignment(t *testing.T) {
	stub := &stubTrackingService{}
	handler := NewTrackingHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/experiments/9/assignment?user_id=42&referral_source=ads", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("9")

	if err := handler.GetAssignment(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if stub.lastContext.ReferralSource != "ads" {
		t.Fatalf("segment context not propagated: %+v", stub.lastContext)
	}
}

func TestGetAssignment_RequiresUserID(t *testing.T) {
	handler := NewTrackingHandler(&stubTrackingService{})

	req := httptest.NewRequest(http.MethodGet, "/experiments/9/assignment", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("9")

	if err := handler.GetAssignment(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetAssignment_NotFound(t *testing.T) {
	stub := &stubTrackingService{assignErr: domain.ErrNotFound}
	handler := NewTrackingHandler(stub)

	req := httptest.NewRequest(http.MethodGet, "/experiments/9/assignment?user_id=42", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("9")

	if err := handler.GetAssignment(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
