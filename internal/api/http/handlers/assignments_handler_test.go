package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etu-nz/bmm-service/internal/api/dto"
	"github.com/etu-nz/bmm-service/internal/domain"
	"github.com/etu-nz/bmm-service/internal/events"
	"github.com/etu-nz/bmm-service/internal/observability"
	"github.com/etu-nz/bmm-service/internal/repository"
	"github.com/etu-nz/bmm-service/internal/service"
	"github.com/etu-nz/bmm-service/internal/worker"
)

var bulkSlotTime = time.Date(2026, 5, 16, 10, 0, 0, 0, time.UTC)

func newAssignmentsTestApp(t *testing.T) (*fiber.App, *repository.InMemoryMemberRepository, *repository.InMemoryVenueRepository) {
	t.Helper()
	members := repository.NewInMemoryMemberRepository()
	venues := repository.NewInMemoryVenueRepository()
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	svc := service.NewAssignmentService(service.AssignmentDependencies{
		MemberRepo:   members,
		VenueRepo:    venues,
		StageService: service.NewStageService(members, dispatcher, logger),
		Runner:       worker.NewRunner(repository.NewInMemoryJobStore(), logger),
		Dispatcher:   dispatcher,
		Metrics:      observability.NewMetrics(),
		Logger:       logger,
	})

	app := fiber.New()
	handler := NewAssignmentsHandler(svc)
	app.Post("/assignments/bulk", handler.BulkAssign)
	return app, members, venues
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestBulkAssignAcceptsPerItemPlacements(t *testing.T) {
	app, members, venues := newAssignmentsTestApp(t)
	venues.AddVenue(domain.Venue{
		Name:   "Greymouth RSA",
		Region: "West Coast",
		Slots:  []domain.Slot{{SlotTime: bulkSlotTime, Capacity: 5}},
	})
	venues.AddVenue(domain.Venue{
		Name:   "Hokitika Hall",
		Region: "West Coast",
		Slots:  []domain.Slot{{SlotTime: bulkSlotTime, Capacity: 5}},
	})
	ctx := context.Background()
	for _, id := range []string{"M-001", "M-002"} {
		require.NoError(t, members.Create(ctx, &domain.Member{
			MembershipNumber: id,
			Region:           "West Coast",
			Stage:            domain.StagePreferenceSubmitted,
		}))
	}

	resp := postJSON(t, app, "/assignments/bulk", dto.BulkAssignRequest{
		Assignments: []dto.ManualAssignRequest{
			{MembershipNumber: "M-001", VenueName: "Greymouth RSA", SlotTime: bulkSlotTime},
			{MembershipNumber: "M-002", VenueName: "Hokitika Hall", SlotTime: bulkSlotTime},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data []dto.AssignmentResultResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "M-001", body.Data[0].MembershipNumber)
	assert.Equal(t, "Greymouth RSA", body.Data[0].VenueName)
	assert.Equal(t, string(domain.OutcomeAssigned), body.Data[0].Outcome)
	assert.Equal(t, "M-002", body.Data[1].MembershipNumber)
	assert.Equal(t, "Hokitika Hall", body.Data[1].VenueName)
	assert.Equal(t, string(domain.OutcomeAssigned), body.Data[1].Outcome)
}
