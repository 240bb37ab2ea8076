package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaeng/aura/pkg/fsm"
	"github.com/anaeng/aura/pkg/jobs"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

// fakeQuerier returns a canned provider-side connection status.
type fakeQuerier struct {
	status *nsi.ConnectionStatus
	err    error
}

func (f *fakeQuerier) QuerySummarySync(ctx context.Context, correlationID, connectionID uuid.UUID) (*nsi.ConnectionStatus, error) {
	return f.status, f.err
}

func newReservationFixture(t *testing.T) (*store.Store, *fakeDispatcher, *fakeQuerier, *ReservationHandler, *models.STP, *models.STP) {
	t.Helper()
	s, err := store.NewInMemory()
	require.NoError(t, err)

	ctx := context.Background()
	source := &models.STP{StpID: "a.example:2024:p1", VlanRange: "100-110", Active: true}
	dest := &models.STP{StpID: "z.example:2024:p1", VlanRange: "100-110", Active: true}
	require.NoError(t, s.CreateSTP(ctx, source))
	require.NoError(t, s.CreateSTP(ctx, dest))

	dispatcher := &fakeDispatcher{}
	querier := &fakeQuerier{}
	return s, dispatcher, querier, NewReservationHandler(s, dispatcher, querier), source, dest
}

func createRequest(source, dest *models.STP, sourceVlan, destVlan int) *bytes.Buffer {
	body, _ := json.Marshal(CreateReservationRequest{
		Description: "test circuit",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  sourceVlan,
		DestVlan:    destVlan,
		Bandwidth:   1000,
	})
	return bytes.NewBuffer(body)
}

// routeRequest runs a request through a chi route so URL parameters resolve.
func routeRequest(method, pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, handler)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateReservation(t *testing.T) {
	_, dispatcher, _, h, source, dest := newReservationFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reservations/", createRequest(source, dest, 100, 105))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var response ReservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotZero(t, response.ID)
	assert.Equal(t, string(fsm.ConnectionNew), response.State)
	assert.NotEqual(t, uuid.Nil, response.GlobalReservationID)

	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, jobs.KindReserve, dispatcher.jobs[0].Kind)
	assert.Equal(t, response.ID, dispatcher.jobs[0].ReservationID)
}

func TestCreateReservationVlanTaken(t *testing.T) {
	s, dispatcher, _, h, source, dest := newReservationFixture(t)

	// Occupy VLAN 100 on the source side.
	existing := &models.Reservation{
		Description: "existing",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    101,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), existing))
	require.NoError(t, s.ForceReservationState(context.Background(), existing.ID, fsm.ConnectionActive))

	req := httptest.NewRequest(http.MethodPost, "/api/reservations/", createRequest(source, dest, 100, 105))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "VLAN 100 not available")
	assert.Contains(t, rec.Body.String(), "101-110")
	assert.Empty(t, dispatcher.jobs)
}

func TestCreateReservationRejectionLeavesNoRow(t *testing.T) {
	s, _, _, h, source, dest := newReservationFixture(t)

	existing := &models.Reservation{
		Description: "existing",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    101,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), existing))
	require.NoError(t, s.ForceReservationState(context.Background(), existing.ID, fsm.ConnectionActive))

	req := httptest.NewRequest(http.MethodPost, "/api/reservations/", createRequest(source, dest, 100, 105))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// The check-and-insert transaction rolled back whole.
	all, err := s.ListReservations(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, existing.ID, all[0].ID)
}

func TestCreateReservationValidation(t *testing.T) {
	_, dispatcher, _, h, source, dest := newReservationFixture(t)

	// VLAN 1 is below the usable range.
	req := httptest.NewRequest(http.MethodPost, "/api/reservations/", createRequest(source, dest, 1, 105))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, dispatcher.jobs)
}

func TestCreateReservationUnknownSTP(t *testing.T) {
	_, _, _, h, source, dest := newReservationFixture(t)

	body, _ := json.Marshal(CreateReservationRequest{
		Description: "test circuit",
		SourceStpID: source.ID + dest.ID + 100,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    105,
		Bandwidth:   1000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/reservations/", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown source STP")
}

func TestProvisionIllegalTransition(t *testing.T) {
	s, dispatcher, _, h, source, dest := newReservationFixture(t)

	reservation := &models.Reservation{
		Description: "fresh",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    100,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), reservation))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/reservations/%d/provision", reservation.ID), nil)
	rec := routeRequest(http.MethodPost, "/api/reservations/{id}/provision", h.Provision, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not allowed")
	assert.Empty(t, dispatcher.jobs)
}

func TestTerminateQueuesJob(t *testing.T) {
	s, dispatcher, _, h, source, dest := newReservationFixture(t)

	reservation := &models.Reservation{
		Description: "committed",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    100,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), reservation))
	require.NoError(t, s.ForceReservationState(context.Background(), reservation.ID, fsm.ConnectionReserveCommitted))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/reservations/%d/terminate", reservation.ID), nil)
	rec := routeRequest(http.MethodPost, "/api/reservations/{id}/terminate", h.Terminate, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, jobs.KindTerminate, dispatcher.jobs[0].Kind)
}

func TestGetReservationNotFound(t *testing.T) {
	_, _, _, h, _, _ := newReservationFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/reservations/12345/", nil)
	rec := routeRequest(http.MethodGet, "/api/reservations/{id}/", h.Get, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTerminatedReservation(t *testing.T) {
	s, _, _, h, source, dest := newReservationFixture(t)

	reservation := &models.Reservation{
		Description: "done",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    100,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), reservation))
	require.NoError(t, s.ForceReservationState(context.Background(), reservation.ID, fsm.ConnectionTerminated))

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/reservations/%d/", reservation.ID), nil)
	rec := routeRequest(http.MethodDelete, "/api/reservations/{id}/", h.Delete, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	loaded, err := s.GetReservation(context.Background(), reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, string(fsm.ConnectionDeleted), loaded.State)
}

func TestDeleteActiveReservationRejected(t *testing.T) {
	s, _, _, h, source, dest := newReservationFixture(t)

	reservation := &models.Reservation{
		Description: "running",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    100,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), reservation))
	require.NoError(t, s.ForceReservationState(context.Background(), reservation.ID, fsm.ConnectionActive))

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/reservations/%d/", reservation.ID), nil)
	rec := routeRequest(http.MethodDelete, "/api/reservations/{id}/", h.Delete, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerifyRepairsDrift(t *testing.T) {
	s, _, querier, h, source, dest := newReservationFixture(t)

	reservation := &models.Reservation{
		Description: "drifted",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    100,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), reservation))
	require.NoError(t, s.ForceReservationState(context.Background(), reservation.ID, fsm.ConnectionProvisioned))
	connectionID := uuid.New()
	require.NoError(t, s.SetConnectionID(context.Background(), reservation.ID, connectionID))

	// The provider says the data plane is up, so locally Provisioned is stale.
	querier.status = &nsi.ConnectionStatus{
		ConnectionID:     connectionID,
		ReservationState: "ReserveStart",
		ProvisionState:   "Provisioned",
		LifecycleState:   "Created",
		DataPlaneActive:  true,
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/reservations/%d/verify", reservation.ID), nil)
	rec := routeRequest(http.MethodPost, "/api/reservations/{id}/verify", h.Verify, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	loaded, err := s.GetReservation(context.Background(), reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, string(fsm.ConnectionActive), loaded.State)
}

func TestVerifyWithoutConnectionID(t *testing.T) {
	s, _, _, h, source, dest := newReservationFixture(t)

	reservation := &models.Reservation{
		Description: "never sent",
		SourceStpID: source.ID,
		DestStpID:   dest.ID,
		SourceVlan:  100,
		DestVlan:    100,
		Bandwidth:   1000,
	}
	require.NoError(t, s.CreateReservation(context.Background(), reservation))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/reservations/%d/verify", reservation.ID), nil)
	rec := routeRequest(http.MethodPost, "/api/reservations/{id}/verify", h.Verify, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
