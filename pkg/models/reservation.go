package models

import (
	"time"

	"github.com/google/uuid"
)

// Vlan bounds for reservations. The full 802.1Q space is wider but 0, 1 and
// 4095 are reserved labels and 4096 is out of range on the wire.
const (
	MinReservationVlan = 2
	MaxReservationVlan = 4094
)

// Reservation is one cross-domain connection request and owns its complete
// lifecycle.
//
// ConnectionID is assigned by the NSI provider on reserve and is null before
// that. CorrelationID is rotated on every outbound message; it is the
// expected correlator for the next asynchronous reply. State always holds a
// declared state of the connection state machine and is only mutated through
// it.
type Reservation struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ConnectionID        *uuid.UUID `gorm:"index;size:36" json:"connectionId,omitempty"`
	GlobalReservationID uuid.UUID  `gorm:"size:36;not null" json:"globalReservationId"`
	CorrelationID       uuid.UUID  `gorm:"index;size:36" json:"correlationId"`
	Description         string     `gorm:"size:255;not null" json:"description"`
	StartTime           *time.Time `json:"startTime,omitempty"`
	EndTime             *time.Time `json:"endTime,omitempty"`
	SourceStpID         uint       `gorm:"not null" json:"sourceStpId"`
	DestStpID           uint       `gorm:"not null" json:"destStpId"`
	SourceVlan          int        `gorm:"not null" json:"sourceVlan" validate:"gte=2,lte=4094"`
	DestVlan            int        `gorm:"not null" json:"destVlan" validate:"gte=2,lte=4094"`
	Bandwidth           int        `gorm:"not null" json:"bandwidth" validate:"gt=0"`
	State               string     `gorm:"size:64;not null" json:"state"`

	SourceStp *STP  `gorm:"foreignKey:SourceStpID" json:"sourceStp,omitempty"`
	DestStp   *STP  `gorm:"foreignKey:DestStpID" json:"destStp,omitempty"`
	SDPs      []SDP `gorm:"many2many:reservation_sdp_link" json:"sdps,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the database table name.
func (Reservation) TableName() string {
	return "reservation"
}
