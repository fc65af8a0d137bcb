package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"myContentLab/business/experiment"
	"myContentLab/domain"
	"myContentLab/pkg/logger"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type TrackingService interface {
	TrackImpression(ctx context.Context, variantID uint, sc experiment.SegmentContext) error
	TrackClick(ctx context.Context, variantID uint) error
	TrackConversion(ctx context.Context, variantID uint, revenue float64, sc experiment.SegmentContext) error
	RecordContinuousMetric(ctx context.Context, variantID uint, name string, value float64) error
	GetAssignedVariant(ctx context.Context, userID, experimentID uint, sc experiment.SegmentContext) (domain.Variant, error)
}

// TrackingHandler serves the storefront-facing event and assignment
// endpoints. These run on every product view, so they stay thin.
type TrackingHandler struct {
	trackingService TrackingService
	validator       *validator.Validate
	timeout         time.Duration
}

func NewTrackingHandler(trackingService TrackingService) *TrackingHandler {
	return &TrackingHandler{
		trackingService: trackingService,
		validator:       validator.New(),
		timeout:         5 * time.Second,
	}
}

type TrackEventRequest struct {
	VariantID      uint    `json:"variant_id" validate:"required"`
	Revenue        float64 `json:"revenue" validate:"gte=0"`
	Location       string  `json:"location"`
	ReferralSource string  `json:"referral_source"`
}

type TrackMetricRequest struct {
	VariantID uint    `json:"variant_id" validate:"required"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
}

func (r TrackEventRequest) segmentContext() experiment.SegmentContext {
	return experiment.SegmentContext{
		Location:       r.Location,
		ReferralSource: r.ReferralSource,
	}
}

func (h *TrackingHandler) bindEvent(c echo.Context) (TrackEventRequest, error) {
	var req TrackEventRequest
	if err := c.Bind(&req); err != nil {
		return TrackEventRequest{}, err
	}
	if err := h.validator.Struct(&req); err != nil {
		return TrackEventRequest{}, err
	}
	return req, nil
}

func (h *TrackingHandler) TrackImpression(c echo.Context) error {
	req, err := h.bindEvent(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.trackingService.TrackImpression(ctx, req.VariantID, req.segmentContext()); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK("impression recorded"))
}

func (h *TrackingHandler) TrackClick(c echo.Context) error {
	req, err := h.bindEvent(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.trackingService.TrackClick(ctx, req.VariantID); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK("click recorded"))
}

func (h *TrackingHandler) TrackConversion(c echo.Context) error {
	req, err := h.bindEvent(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.trackingService.TrackConversion(ctx, req.VariantID, req.Revenue, req.segmentContext()); err != nil {
		logger.Error("Failed to record conversion", "variant_id", req.VariantID, "error", err)
		return serviceError(c, err)
	}

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK("conversion recorded"))
}

func (h *TrackingHandler) TrackMetric(c echo.Context) error {
	var req TrackMetricRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.trackingService.RecordContinuousMetric(ctx, req.VariantID, req.Name, req.Value); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusAccepted, fres.Response.StatusOK("metric recorded"))
}

// GetAssignment resolves the variant a visitor should see on a product
// page. The visitor identity comes from the storefront session, not
// from an authenticated account.
func (h *TrackingHandler) GetAssignment(c echo.Context) error {
	experimentID, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	userID, err := strconv.ParseUint(c.QueryParam("user_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid or missing user_id"})
	}

	sc := experiment.SegmentContext{
		Location:       c.QueryParam("location"),
		ReferralSource: c.QueryParam("referral_source"),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	variant, err := h.trackingService.GetAssignedVariant(ctx, uint(userID), experimentID, sc)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(variant))
}
