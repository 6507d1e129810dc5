package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/service"
)

// VenuesHandler serves the venue capacity view.
type VenuesHandler struct {
	assignments *service.AssignmentService
}

// NewVenuesHandler constructs handler.
func NewVenuesHandler(assignments *service.AssignmentService) *VenuesHandler {
	return &VenuesHandler{assignments: assignments}
}

// ListVenues GET /venues.
func (h *VenuesHandler) ListVenues(c *fiber.Ctx) error {
	var region *string
	if val := strings.TrimSpace(c.Query("region")); val != "" {
		region = &val
	}

	venues, err := h.assignments.VenuesWithCapacity(c.Context(), region)
	if err != nil {
		return err
	}
	items := make([]dto.VenueResponse, 0, len(venues))
	for _, v := range venues {
		items = append(items, venueResponse(v))
	}
	return c.JSON(fiber.Map{"data": items})
}

func venueResponse(v domain.Venue) dto.VenueResponse {
	slots := make([]dto.SlotResponse, 0, len(v.Slots))
	for _, s := range v.Slots {
		pct := 0
		if s.Capacity > 0 {
			pct = s.Occupancy * 100 / s.Capacity
		}
		slots = append(slots, dto.SlotResponse{
			SlotTime:  s.SlotTime,
			Capacity:  s.Capacity,
			Assigned:  s.Occupancy,
			Remaining: s.Remaining(),
			Percent:   pct,
			Full:      s.Full(),
		})
	}
	return dto.VenueResponse{Name: v.Name, Region: v.Region, Address: v.Address, Slots: slots}
}
