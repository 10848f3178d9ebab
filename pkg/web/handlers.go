package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/strobe/pkg/metrics"
	"github.com/dukex/strobe/pkg/models"
	"github.com/dukex/strobe/pkg/persistence"
	"github.com/dukex/strobe/pkg/services"
)

type APIHandlers struct {
	targetService   *services.Target
	scheduleService *services.Schedule
	runService      *services.Run
	metrics         *metrics.Collector
	validator       *validator.Validate
}

func NewAPIHandlers(
	targetService *services.Target,
	scheduleService *services.Schedule,
	runService *services.Run,
	metricsCollector *metrics.Collector,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		targetService:   targetService,
		scheduleService: scheduleService,
		runService:      runService,
		metrics:         metricsCollector,
		validator:       validator,
	}
}

// --- Targets ---

func (h *APIHandlers) CreateTarget(c fiber.Ctx) error {
	var req CreateTargetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	target := &models.Target{
		Name:           req.Name,
		URL:            req.URL,
		Method:         req.Method,
		Headers:        req.Headers,
		BodyTemplate:   req.BodyTemplate,
		TimeoutSeconds: req.TimeoutSeconds,
	}

	created, err := h.targetService.Create(c.Context(), target)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTargets(c fiber.Ctx) error {
	targets, err := h.targetService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(targets)
}

func (h *APIHandlers) GetTarget(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Target ID is required")
	}

	target, err := h.targetService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(target)
}

func (h *APIHandlers) UpdateTarget(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Target ID is required")
	}

	var req UpdateTargetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.targetService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.URL != nil {
		existing.URL = *req.URL
	}

	if req.Method != nil {
		existing.Method = *req.Method
	}

	if req.Headers != nil {
		existing.Headers = req.Headers
	}

	if req.BodyTemplate != nil {
		existing.BodyTemplate = *req.BodyTemplate
	}

	if req.TimeoutSeconds != nil {
		existing.TimeoutSeconds = *req.TimeoutSeconds
	}

	updated, err := h.targetService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTarget(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Target ID is required")
	}

	if err := h.targetService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// --- Schedules ---

func (h *APIHandlers) CreateSchedule(c fiber.Ctx) error {
	var req CreateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule := &models.Schedule{
		Name:            req.Name,
		TargetID:        req.TargetID,
		Type:            models.ScheduleType(req.Type),
		IntervalSeconds: req.IntervalSeconds,
		CronExpression:  req.CronExpression,
		DurationSeconds: req.DurationSeconds,
		MaxRuns:         req.MaxRuns,
	}

	if req.StartAt != nil {
		schedule.StartAt = *req.StartAt
	}

	created, err := h.scheduleService.Create(c.Context(), schedule)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules, err := h.scheduleService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(schedules)
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	schedule, err := h.scheduleService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) UpdateSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	var req UpdateScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.scheduleService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.TargetID != nil {
		existing.TargetID = *req.TargetID
	}

	if req.Type != nil {
		existing.Type = models.ScheduleType(*req.Type)
	}

	if req.IntervalSeconds != nil {
		existing.IntervalSeconds = *req.IntervalSeconds
	}

	if req.CronExpression != nil {
		existing.CronExpression = *req.CronExpression
	}

	if req.StartAt != nil {
		existing.StartAt = *req.StartAt
	}

	if req.DurationSeconds != nil {
		existing.DurationSeconds = req.DurationSeconds
	}

	if req.MaxRuns != nil {
		existing.MaxRuns = req.MaxRuns
	}

	updated, err := h.scheduleService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	if err := h.scheduleService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	schedule, err := h.scheduleService.Pause(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

func (h *APIHandlers) ResumeSchedule(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	schedule, err := h.scheduleService.Resume(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schedule)
}

// --- Runs (read-only) ---

func (h *APIHandlers) GetRuns(c fiber.Ctx) error {
	filter, err := h.parseRunFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	runs, err := h.runService.List(c.Context(), *filter)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs": runs,
		"pagination": fiber.Map{
			"limit":  filter.Limit,
			"offset": filter.Offset,
		},
	})
}

func (h *APIHandlers) CountRuns(c fiber.Ctx) error {
	filter, err := h.parseRunFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	count, err := h.runService.Count(c.Context(), *filter)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"count": count})
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetRunAttempts(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	attempts, err := h.runService.Attempts(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(attempts)
}

// parseRunFilter parses and validates query parameters for run listings.
func (h *APIHandlers) parseRunFilter(c fiber.Ctx) (*persistence.RunFilter, error) {
	filter := &persistence.RunFilter{
		ScheduleID: c.Query("schedule_id"),
		Status:     models.RunStatus(c.Query("status")),
	}

	if afterStr := c.Query("scheduled_after"); afterStr != "" {
		after, err := time.Parse(time.RFC3339, afterStr)
		if err != nil {
			return nil, err
		}

		filter.ScheduledAfter = &after
	}

	if beforeStr := c.Query("scheduled_before"); beforeStr != "" {
		before, err := time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			return nil, err
		}

		filter.ScheduledBefore = &before
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		filter.Offset = offset
	}

	return filter, nil
}

// --- Metrics & health ---

func (h *APIHandlers) GetMetrics(c fiber.Ctx) error {
	summary, err := h.metrics.Summary(c.Context(), "")
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetScheduleMetrics(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Schedule ID is required")
	}

	// 404 for unknown schedules instead of an all-zero summary.
	if _, err := h.scheduleService.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	summary, err := h.metrics.Summary(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.targetService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Strobe API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Strobe API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
