package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/repository"
	"github.com/etu-nz/bmm-service/internal/service"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// NotificationsHandler manages batch notification dispatch.
type NotificationsHandler struct {
	notifications *service.NotificationService
	members       *service.MemberService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService, members *service.MemberService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications, members: members}
}

// BulkNotify POST /notifications/bulk. An explicit member list wins over a
// region filter; with neither, the whole eligible population is targeted.
func (h *NotificationsHandler) BulkNotify(c *fiber.Ctx) error {
	var req dto.BulkNotifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kind, ok := domain.ParseTemplateKind(req.TemplateKind)
	if !ok {
		return apperrors.NewValidationError("unknown template kind", map[string]any{"templateKind": req.TemplateKind})
	}

	ids := req.MembershipNumbers
	if len(ids) == 0 {
		filter := repository.MemberFilter{AttendingOnly: true}
		if region := strings.TrimSpace(req.Region); region != "" {
			filter.Region = &region
		}
		members, err := h.members.List(c.Context(), filter)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(members))
		for i := range members {
			ids = append(ids, members[i].MembershipNumber)
		}
	}
	if len(ids) == 0 {
		return apperrors.NewValidationError("no members match the request", nil)
	}

	job, err := h.notifications.DispatchBatch(c.Context(), ids, kind, req.Provider, req.Force)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": jobAcceptedResponse(job)})
}
