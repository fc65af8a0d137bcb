package rest

import (
	"context"
	"errors"
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

type ExperimentService interface {
	CreateExperiment(ctx context.Context, e *domain.Experiment, variants []experiment.NewVariant) ([]domain.Variant, error)
	GetExperiment(ctx context.Context, id uint) (domain.Experiment, []domain.Variant, error)
	ListExperiments(ctx context.Context, tenantID uint) ([]domain.Experiment, error)
	StartExperiment(ctx context.Context, id uint) (domain.Experiment, error)
	PauseExperiment(ctx context.Context, id uint) (domain.Experiment, error)
	EndExperiment(ctx context.Context, id uint) (domain.Experiment, error)
	DeleteExperiment(ctx context.Context, id uint) error
	DeclareWinner(ctx context.Context, experimentID, variantID uint) (domain.Experiment, domain.Variant, error)
	GetAnalysisResults(ctx context.Context, id uint) (experiment.AnalysisResult, error)
	GetWinnersBySegment(ctx context.Context, id uint) ([]experiment.SegmentWinner, error)
	RotateActiveVariant(ctx context.Context, id uint) (domain.Variant, error)
}

type ExperimentHandler struct {
	experimentService ExperimentService
	validator         *validator.Validate
	timeout           time.Duration
}

func NewExperimentHandler(experimentService ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{
		experimentService: experimentService,
		validator:         validator.New(),
		timeout:           10 * time.Second,
	}
}

type CreateVariantRequest struct {
	Description       string  `json:"description" validate:"required"`
	IsControl         bool    `json:"is_control"`
	TrafficAllocation float64 `json:"traffic_allocation" validate:"gte=0,lte=100"`
}

type CreateExperimentRequest struct {
	ProductRef               string                 `json:"product_ref" validate:"required"`
	Name                     string                 `json:"name" validate:"required"`
	Description              string                 `json:"description"`
	TestType                 string                 `json:"test_type" validate:"omitempty,oneof=AB_TEST MAB_TEST"`
	StartTime                *time.Time             `json:"start_time"`
	EndTime                  *time.Time             `json:"end_time"`
	AutoOptimize             bool                   `json:"auto_optimize"`
	AutoOptimizeCooldownDays int                    `json:"auto_optimize_cooldown_days" validate:"gte=0"`
	GoalMetric               string                 `json:"goal_metric"`
	Variants                 []CreateVariantRequest `json:"variants" validate:"required,min=2,dive"`
}

type DeclareWinnerRequest struct {
	VariantID uint `json:"variant_id" validate:"required"`
}

// serviceError maps domain sentinels onto HTTP statuses.
func serviceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, ResponseError{Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidState):
		return c.JSON(http.StatusConflict, ResponseError{Message: err.Error()})
	case errors.Is(err, domain.ErrConflictExhausted):
		return c.JSON(http.StatusConflict, ResponseError{Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (h *ExperimentHandler) CreateExperiment(c echo.Context) error {
	var req CreateExperimentRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind experiment request", "error", err)
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	tenantID, _ := c.Get("tenant_id").(uint)
	e := domain.Experiment{
		TenantID:                 tenantID,
		ProductRef:               req.ProductRef,
		Name:                     req.Name,
		Description:              req.Description,
		TestType:                 domain.ExperimentType(req.TestType),
		StartTime:                req.StartTime,
		EndTime:                  req.EndTime,
		AutoOptimize:             req.AutoOptimize,
		AutoOptimizeCooldownDays: req.AutoOptimizeCooldownDays,
		GoalMetric:               req.GoalMetric,
	}

	newVariants := make([]experiment.NewVariant, 0, len(req.Variants))
	for _, v := range req.Variants {
		newVariants = append(newVariants, experiment.NewVariant{
			Description:       v.Description,
			IsControl:         v.IsControl,
			TrafficAllocation: v.TrafficAllocation,
		})
	}

	variants, err := h.experimentService.CreateExperiment(ctx, &e, newVariants)
	if err != nil {
		logger.Error("Failed to create experiment", "error", err)
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(map[string]interface{}{
		"experiment": e,
		"variants":   variants,
	}))
}

func (h *ExperimentHandler) ListExperiments(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	var tenantID uint
	if raw := c.QueryParam("tenant_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid tenant_id"})
		}
		tenantID = uint(parsed)
	}

	experiments, err := h.experimentService.ListExperiments(ctx, tenantID)
	if err != nil {
		logger.Error("Failed to list experiments", "error", err)
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(experiments))
}

func (h *ExperimentHandler) GetExperiment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	e, variants, err := h.experimentService.GetExperiment(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(map[string]interface{}{
		"experiment": e,
		"variants":   variants,
	}))
}

func (h *ExperimentHandler) StartExperiment(c echo.Context) error {
	return h.transition(c, h.experimentService.StartExperiment)
}

func (h *ExperimentHandler) PauseExperiment(c echo.Context) error {
	return h.transition(c, h.experimentService.PauseExperiment)
}

func (h *ExperimentHandler) EndExperiment(c echo.Context) error {
	return h.transition(c, h.experimentService.EndExperiment)
}

func (h *ExperimentHandler) transition(c echo.Context, op func(context.Context, uint) (domain.Experiment, error)) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	e, err := op(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(e))
}

func (h *ExperimentHandler) DeclareWinner(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	var req DeclareWinnerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validator.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	e, winner, err := h.experimentService.DeclareWinner(ctx, id, req.VariantID)
	if err != nil {
		logger.Error("Failed to declare winner", "experiment_id", id, "error", err)
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(map[string]interface{}{
		"experiment": e,
		"winner":     winner,
	}))
}

func (h *ExperimentHandler) GetResults(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.experimentService.GetAnalysisResults(ctx, id)
	if err != nil {
		logger.Error("Failed to compute analysis results", "experiment_id", id, "error", err)
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(result))
}

func (h *ExperimentHandler) GetSegmentWinners(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	winners, err := h.experimentService.GetWinnersBySegment(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(winners))
}

func (h *ExperimentHandler) RotateActiveVariant(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	variant, err := h.experimentService.RotateActiveVariant(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(variant))
}

func (h *ExperimentHandler) DeleteExperiment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	if err := h.experimentService.DeleteExperiment(ctx, id); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK("Experiment deleted successfully"))
}
