package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/service"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// AssignmentsHandler manages manual, bulk and automatic venue placement.
type AssignmentsHandler struct {
	service *service.AssignmentService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignmentService *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{service: assignmentService}
}

// ManualAssign POST /assignments/manual.
func (h *AssignmentsHandler) ManualAssign(c *fiber.Ctx) error {
	var req dto.ManualAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.MembershipNumber == "" || req.VenueName == "" || req.SlotTime.IsZero() {
		return apperrors.NewValidationError("membershipNumber, venueName, slotTime required", nil)
	}

	assignment, err := h.service.Assign(c.Context(), req.MembershipNumber, req.VenueName, req.SlotTime)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AssignmentResponse{
		VenueName: assignment.VenueName,
		SlotTime:  assignment.SlotTime,
		Source:    string(assignment.Source),
		AppliedAt: assignment.AppliedAt,
	}})
}

// BulkAssign POST /assignments/bulk.
func (h *AssignmentsHandler) BulkAssign(c *fiber.Ctx) error {
	var req dto.BulkAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Assignments) == 0 {
		return apperrors.NewValidationError("assignments required", nil)
	}

	items := make([]service.BulkAssignmentItem, 0, len(req.Assignments))
	for i, item := range req.Assignments {
		if item.MembershipNumber == "" || item.VenueName == "" || item.SlotTime.IsZero() {
			return apperrors.NewValidationError("membershipNumber, venueName, slotTime required",
				map[string]any{"index": i})
		}
		items = append(items, service.BulkAssignmentItem{
			MembershipNumber: item.MembershipNumber,
			VenueName:        item.VenueName,
			SlotTime:         item.SlotTime,
		})
	}
	results := h.service.BulkAssign(c.Context(), items)
	return c.JSON(fiber.Map{"data": assignmentResultResponses(results)})
}

// AutoAssign POST /assignments/auto.
func (h *AssignmentsHandler) AutoAssign(c *fiber.Ctx) error {
	var req dto.AutoAssignRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var region *string
	if val := strings.TrimSpace(req.Region); val != "" {
		region = &val
	}
	job, err := h.service.AutoAssignAll(c.Context(), region, req.ReplaceExisting)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": jobAcceptedResponse(job)})
}

func assignmentResultResponses(results []domain.AssignmentResult) []dto.AssignmentResultResponse {
	out := make([]dto.AssignmentResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, dto.AssignmentResultResponse{
			MembershipNumber: r.MembershipNumber,
			Outcome:          string(r.Outcome),
			VenueName:        r.VenueName,
			SlotTime:         r.SlotTime,
			Detail:           r.Detail,
		})
	}
	return out
}
