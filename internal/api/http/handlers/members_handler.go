package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/repository"
	"github.com/etu-nz/bmm-service/internal/service"
	apperrors "github.com/etu-nz/bmm-service/pkg/util"
)

// MembersHandler manages the admin member endpoints.
type MembersHandler struct {
	members       *service.MemberService
	stages        *service.StageService
	notifications *service.NotificationService
}

// NewMembersHandler constructs handler.
func NewMembersHandler(members *service.MemberService, stages *service.StageService, notifications *service.NotificationService) *MembersHandler {
	return &MembersHandler{members: members, stages: stages, notifications: notifications}
}

// GetMember GET /members/:id.
func (h *MembersHandler) GetMember(c *fiber.Ctx) error {
	member, err := h.members.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memberResponse(member)})
}

// ListMembers GET /members.
func (h *MembersHandler) ListMembers(c *fiber.Ctx) error {
	filter := parseMemberQuery(c)
	members, err := h.members.List(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.MemberResponse, 0, len(members))
	for i := range members {
		items = append(items, memberResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items, "count": len(items)})
}

// GetHistory GET /members/:id/history.
func (h *MembersHandler) GetHistory(c *fiber.Ctx) error {
	entries, err := h.stages.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// AdvanceStage POST /members/:id/stage.
func (h *MembersHandler) AdvanceStage(c *fiber.Ctx) error {
	var req dto.AdvanceStageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		return apperrors.NewValidationError("unknown stage", map[string]any{"stage": req.Stage})
	}

	var member *domain.Member
	if req.Override {
		member, err = h.stages.Override(c.Context(), c.Params("id"), stage, req.Evidence)
	} else {
		member, err = h.stages.Advance(c.Context(), c.Params("id"), stage, req.Evidence)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": memberResponse(member)})
}

// SendNotification POST /members/:id/send.
func (h *MembersHandler) SendNotification(c *fiber.Ctx) error {
	var req dto.SendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kind, ok := domain.ParseTemplateKind(req.TemplateKind)
	if !ok {
		return apperrors.NewValidationError("unknown template kind", map[string]any{"templateKind": req.TemplateKind})
	}

	result := h.notifications.Dispatch(c.Context(), c.Params("id"), kind, req.Provider, req.Force)
	if result.Err != nil {
		return result.Err
	}
	return c.JSON(fiber.Map{"data": dispatchResponse(result)})
}

func parseMemberQuery(c *fiber.Ctx) repository.MemberFilter {
	filter := repository.MemberFilter{}
	if region := strings.TrimSpace(c.Query("region")); region != "" {
		filter.Region = &region
	}
	if stageStr := strings.TrimSpace(c.Query("stage")); stageStr != "" {
		if stage, err := domain.ParseStage(stageStr); err == nil {
			filter.Stage = &stage
		}
	}
	if c.Query("attending") == "true" {
		filter.AttendingOnly = true
	}
	page := parsePositiveInt(c.Query("page"), 1)
	pageSize := parsePositiveInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parsePositiveInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func memberResponse(m *domain.Member) dto.MemberResponse {
	prefs := make([]dto.PreferenceResponse, 0, len(m.Preferences))
	for _, p := range m.Preferences {
		prefs = append(prefs, dto.PreferenceResponse{Rank: p.Rank, VenueName: p.VenueName, SlotTime: p.SlotTime})
	}

	resp := dto.MemberResponse{
		MembershipNumber:    m.MembershipNumber,
		Name:                m.Name,
		Region:              m.Region,
		PrimaryEmail:        m.PrimaryEmail,
		Mobile:              m.Mobile,
		Stage:               string(m.Stage),
		PreferredAttending:  m.PreferredAttending,
		SpecialVoteEligible: m.SpecialVoteEligible,
		ContactChannel:      string(m.ContactChannel()),
		Preferences:         prefs,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
	if m.Assignment != nil {
		resp.Assignment = &dto.AssignmentResponse{
			VenueName: m.Assignment.VenueName,
			SlotTime:  m.Assignment.SlotTime,
			Source:    string(m.Assignment.Source),
			AppliedAt: m.Assignment.AppliedAt,
		}
	}
	return resp
}

func historyResponses(entries []domain.StageHistoryEntry) []dto.StageHistoryResponse {
	out := make([]dto.StageHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.StageHistoryResponse{
			FromStage: string(e.FromStage),
			ToStage:   string(e.ToStage),
			Override:  e.Override,
			Evidence:  e.Evidence,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}

func dispatchResponse(r service.DispatchResult) dto.DispatchResponse {
	return dto.DispatchResponse{
		MembershipNumber: r.MembershipNumber,
		Channel:          string(r.Channel),
		Status:           string(r.Status),
		AlreadySent:      r.AlreadySent,
		Excluded:         r.Excluded,
	}
}
