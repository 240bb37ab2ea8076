package nsi

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaeng/aura/pkg/models"
)

func loadTestTemplates(t *testing.T) *Templates {
	t.Helper()
	templates, err := LoadTemplates("../../static")
	require.NoError(t, err)
	return templates
}

func testReservation() (*models.Reservation, *models.STP, *models.STP) {
	start := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	reservation := &models.Reservation{
		GlobalReservationID: uuid.MustParse("11111111-2222-3333-4444-555555555555"),
		Description:         "test circuit",
		StartTime:           &start,
		EndTime:             &end,
		SourceVlan:          100,
		DestVlan:            200,
		Bandwidth:           1000,
	}
	source := &models.STP{StpID: "a.example:2024:port-a", VlanRange: "100-200"}
	dest := &models.STP{StpID: "z.example:2024:port-z", VlanRange: "100-200"}
	return reservation, source, dest
}

func TestRenderReserve(t *testing.T) {
	templates := loadTestTemplates(t)
	reservation, source, dest := testReservation()
	correlationID := uuid.MustParse("9c2b6da1-8b9e-4c22-9a9b-1f6a9b1d0a10")

	message, err := templates.RenderReserve(ReserveFields{
		CorrelationID: correlationID,
		ReplyTo:       "https://aura.example/api/nsi/callback/",
		ProviderID:    "urn:ogf:network:domain.example:2024:nsa",
		Reservation:   reservation,
		SourceSTP:     source,
		DestSTP:       dest,
	})
	require.NoError(t, err)

	// The rendered message is well-formed and carries the typed fields.
	doc, err := ParseDocument([]byte(message))
	require.NoError(t, err)

	parsed, ok := doc.CorrelationID()
	require.True(t, ok)
	assert.Equal(t, correlationID, parsed)

	name, body, ok := doc.Body()
	require.True(t, ok)
	assert.Equal(t, "reserve", name)
	assert.Equal(t, reservation.GlobalReservationID, body["globalReservationId"])
	assert.Equal(t, "urn:ogf:network:a.example:2024:port-a?vlan=100",
		doc.DigString("Envelope", "Body", "reserve", "criteria", "p2ps", "sourceSTP"))
	assert.Equal(t, "urn:ogf:network:z.example:2024:port-z?vlan=200",
		doc.DigString("Envelope", "Body", "reserve", "criteria", "p2ps", "destSTP"))
	assert.Equal(t, "1000", doc.DigString("Envelope", "Body", "reserve", "criteria", "p2ps", "capacity"))

	startTime, _ := doc.Dig("Envelope", "Body", "reserve", "criteria", "schedule", "startTime")
	assert.Equal(t, *reservation.StartTime, startTime.(time.Time))
}

func TestRenderReserveDefaultsSchedule(t *testing.T) {
	templates := loadTestTemplates(t)
	reservation, source, dest := testReservation()
	reservation.StartTime = nil
	reservation.EndTime = nil

	message, err := templates.RenderReserve(ReserveFields{
		CorrelationID: uuid.New(),
		ReplyTo:       "https://aura.example/api/nsi/callback/",
		ProviderID:    "urn:ogf:network:domain.example:2024:nsa",
		Reservation:   reservation,
		SourceSTP:     source,
		DestSTP:       dest,
	})
	require.NoError(t, err)

	doc, err := ParseDocument([]byte(message))
	require.NoError(t, err)

	start, _ := doc.Dig("Envelope", "Body", "reserve", "criteria", "schedule", "startTime")
	end, _ := doc.Dig("Envelope", "Body", "reserve", "criteria", "schedule", "endTime")
	now := time.Now().UTC()
	assert.WithinDuration(t, now, start.(time.Time), time.Minute)
	assert.WithinDuration(t, now.Add(endTimeHorizon), end.(time.Time), time.Minute)
}

func TestRenderConnectionMessages(t *testing.T) {
	templates := loadTestTemplates(t)
	connectionID := uuid.MustParse("5f41db45-2cd8-4d0f-ae6a-7ae5d3b4a1ef")

	for kind, wantBody := range map[MessageKind]string{
		MessageReserveCommit:     "reserveCommit",
		MessageReserveAbort:      "reserveAbort",
		MessageProvision:         "provision",
		MessageRelease:           "release",
		MessageTerminate:         "terminate",
		MessageQueryRecursive:    "queryRecursive",
		MessageQuerySummarySync:  "querySummarySync",
		MessageReserveTimeoutAck: "reserveAbort",
	} {
		message, err := templates.RenderConnectionMessage(kind, ConnectionFields{
			CorrelationID: uuid.New(),
			ReplyTo:       "https://aura.example/api/nsi/callback/",
			ProviderID:    "urn:ogf:network:domain.example:2024:nsa",
			ConnectionID:  connectionID,
		})
		require.NoError(t, err, "kind %s", kind)

		doc, err := ParseDocument([]byte(message))
		require.NoError(t, err, "kind %s", kind)

		name, body, ok := doc.Body()
		require.True(t, ok)
		assert.Equal(t, wantBody, name, "kind %s", kind)
		// connectionId is written bare, without an urn prefix.
		assert.Equal(t, connectionID, body["connectionId"], "kind %s", kind)
	}

	_, err := templates.RenderConnectionMessage(MessageKind("bogus"), ConnectionFields{})
	assert.Error(t, err)
}

func TestRenderAcknowledgement(t *testing.T) {
	templates := loadTestTemplates(t)
	correlationID := uuid.New()

	message, err := templates.RenderAcknowledgement(correlationID, "urn:ogf:network:domain.example:2024:nsa")
	require.NoError(t, err)

	doc, err := ParseDocument([]byte(message))
	require.NoError(t, err)

	parsed, ok := doc.CorrelationID()
	require.True(t, ok)
	assert.Equal(t, correlationID, parsed)

	name, _, ok := doc.Body()
	require.True(t, ok)
	assert.Equal(t, "acknowledgement", name)
	assert.Equal(t, "urn:ogf:network:domain.example:2024:nsa",
		doc.DigString("Envelope", "Header", "nsiHeader", "providerNSA"))
}

func TestRenderRejectsUnfilledPlaceholder(t *testing.T) {
	_, err := render("<reserve>#NEVER-FILLED#</reserve>", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEVER-FILLED")
}

func TestLoadTemplatesMissingDirectory(t *testing.T) {
	_, err := LoadTemplates(t.TempDir())
	assert.Error(t, err)
}
