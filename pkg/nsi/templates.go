package nsi

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anaeng/aura/pkg/models"
)

// MessageKind names an outbound NSI-CS message type.
type MessageKind string

const (
	MessageReserve           MessageKind = "reserve"
	MessageReserveCommit     MessageKind = "reserveCommit"
	MessageReserveAbort      MessageKind = "reserveAbort"
	MessageProvision         MessageKind = "provision"
	MessageRelease           MessageKind = "release"
	MessageTerminate         MessageKind = "terminate"
	MessageReserveTimeoutAck MessageKind = "reserveTimeoutAck"
	MessageQuerySummarySync  MessageKind = "querySummarySync"
	MessageQueryRecursive    MessageKind = "queryRecursive"
)

// templateFiles maps each message kind to its XML template under the static
// directory.
var templateFiles = map[MessageKind]string{
	MessageReserve:           "Reserve.xml",
	MessageReserveCommit:     "ReserveCommit.xml",
	MessageReserveAbort:      "ReserveAbort.xml",
	MessageProvision:         "Provision.xml",
	MessageRelease:           "Release.xml",
	MessageTerminate:         "Terminate.xml",
	MessageReserveTimeoutAck: "ReserveTimeoutACK.xml",
	MessageQuerySummarySync:  "QuerySummarySync.xml",
	MessageQueryRecursive:    "QueryRecursive.xml",
}

const acknowledgementFile = "GenericAcknowledgement.xml"

// endTimeHorizon substitutes for a missing reservation end time: twenty
// years out, effectively forever.
const endTimeHorizon = 1040 * 7 * 24 * time.Hour

// Templates holds the SOAP message templates loaded from disk. Rendering is
// plain placeholder substitution; a template with an unfilled #...#
// placeholder after rendering is an error.
type Templates struct {
	messages        map[MessageKind]string
	acknowledgement string
}

// LoadTemplates reads every message template from dir. Missing files are
// fatal at startup.
func LoadTemplates(dir string) (*Templates, error) {
	t := &Templates{messages: make(map[MessageKind]string, len(templateFiles))}
	for kind, file := range templateFiles {
		content, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s template: %w", kind, err)
		}
		t.messages[kind] = string(content)
	}
	content, err := os.ReadFile(filepath.Join(dir, acknowledgementFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load acknowledgement template: %w", err)
	}
	t.acknowledgement = string(content)
	return t, nil
}

// render substitutes the field map into the template and verifies nothing is
// left unfilled.
func render(template string, fields map[string]string) (string, error) {
	message := template
	for key, value := range fields {
		message = strings.ReplaceAll(message, key, value)
	}
	if start := strings.Index(message, "#"); start >= 0 {
		rest := message[start+1:]
		if end := strings.Index(rest, "#"); end >= 0 {
			return "", fmt.Errorf("unfilled template placeholder #%s#", rest[:end])
		}
	}
	return message, nil
}

// ReserveFields carries everything the reserve template needs beyond the
// reservation row itself.
type ReserveFields struct {
	CorrelationID uuid.UUID
	ReplyTo       string
	ProviderID    string
	Reservation   *models.Reservation
	SourceSTP     *models.STP
	DestSTP       *models.STP
}

// RenderReserve builds the initial reservation request. A missing start time
// means "now"; a missing end time means the far-future horizon.
func (t *Templates) RenderReserve(f ReserveFields) (string, error) {
	now := time.Now().UTC()
	start := now
	if f.Reservation.StartTime != nil {
		start = f.Reservation.StartTime.UTC()
	}
	end := now.Add(endTimeHorizon)
	if f.Reservation.EndTime != nil {
		end = f.Reservation.EndTime.UTC()
	}

	return render(t.messages[MessageReserve], map[string]string{
		"#CORRELATION-ID#":         "urn:uuid:" + f.CorrelationID.String(),
		"#REPLY-TO-URL#":           f.ReplyTo,
		"#PROVIDER-NSA-ID#":        f.ProviderID,
		"#CONNECTION-DESCRIPTION#": f.Reservation.Description,
		"#GLOBAL-RESERVATION-ID#":  "urn:uuid:" + f.Reservation.GlobalReservationID.String(),
		"#CONNECTION-START-TIME#":  start.Format(time.RFC3339),
		"#CONNECTION-END-TIME#":    end.Format(time.RFC3339),
		"#CONNECTION-BANDWIDTH#":   strconv.Itoa(f.Reservation.Bandwidth),
		"#SOURCE-STP#":             f.SourceSTP.URNWithVlan(f.Reservation.SourceVlan),
		"#DEST-STP#":               f.DestSTP.URNWithVlan(f.Reservation.DestVlan),
	})
}

// ConnectionFields carries the placeholders shared by every per-connection
// message (commit, abort, provision, release, terminate, timeout ack, query
// recursive).
type ConnectionFields struct {
	CorrelationID uuid.UUID
	ReplyTo       string
	ProviderID    string
	ConnectionID  uuid.UUID
}

// RenderConnectionMessage builds one of the per-connection messages. The
// connectionId is written bare, without an urn prefix.
func (t *Templates) RenderConnectionMessage(kind MessageKind, f ConnectionFields) (string, error) {
	template, ok := t.messages[kind]
	if !ok {
		return "", fmt.Errorf("no template for message kind %q", kind)
	}
	return render(template, map[string]string{
		"#CORRELATION-ID#":  "urn:uuid:" + f.CorrelationID.String(),
		"#REPLY-TO-URL#":    f.ReplyTo,
		"#PROVIDER-NSA-ID#": f.ProviderID,
		"#CONNECTION-ID#":   f.ConnectionID.String(),
	})
}

// RenderQuerySummarySync builds a synchronous state query for one connection.
func (t *Templates) RenderQuerySummarySync(f ConnectionFields) (string, error) {
	return render(t.messages[MessageQuerySummarySync], map[string]string{
		"#CORRELATION-ID#":  "urn:uuid:" + f.CorrelationID.String(),
		"#REPLY-TO-URL#":    f.ReplyTo,
		"#PROVIDER-NSA-ID#": f.ProviderID,
		"#CONNECTION-ID#":   f.ConnectionID.String(),
	})
}

// RenderAcknowledgement builds the generic acknowledgement returned for every
// callback, echoing the caller's correlationId.
func (t *Templates) RenderAcknowledgement(correlationID uuid.UUID, providerID string) (string, error) {
	return render(t.acknowledgement, map[string]string{
		"#CORRELATION-ID#":  "urn:uuid:" + correlationID.String(),
		"#PROVIDER-NSA-ID#": providerID,
	})
}
