package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/service"
)

// ProgressHandler serves the pollable batch job endpoints.
type ProgressHandler struct {
	service *service.ProgressService
}

// NewProgressHandler constructs handler.
func NewProgressHandler(progressService *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: progressService}
}

// GetProgress GET /sync/progress/:job_id.
func (h *ProgressHandler) GetProgress(c *fiber.Ctx) error {
	job, err := h.service.Get(c.Context(), c.Params("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": jobProgressResponse(job)})
}

// CancelJob POST /sync/progress/:job_id/cancel.
func (h *ProgressHandler) CancelJob(c *fiber.Ctx) error {
	if err := h.service.Cancel(c.Context(), c.Params("job_id")); err != nil {
		return err
	}
	job, err := h.service.Get(c.Context(), c.Params("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": jobProgressResponse(job)})
}

func jobAcceptedResponse(job *domain.SyncJob) dto.JobAcceptedResponse {
	return dto.JobAcceptedResponse{JobID: job.ID, Kind: string(job.Kind), Status: string(job.Status)}
}

func jobProgressResponse(job *domain.SyncJob) dto.JobProgressResponse {
	return dto.JobProgressResponse{
		JobID:      job.ID,
		Kind:       string(job.Kind),
		Status:     string(job.Status),
		Processed:  job.Processed,
		Total:      job.Total,
		ErrorCount: job.ErrorCount,
		Percentage: job.Percentage(),
		Detail:     job.Detail,
		StartedAt:  job.StartedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}
