package models

import (
	"fmt"
	"time"
)

// URNPrefix is the prefix every NSI network object identifier carries on the
// wire. Locally stpId values are stored stripped of it.
const URNPrefix = "urn:ogf:network:"

// STP is a Service Termination Point: a bidirectional port endpoint on a
// domain, derived from an NML topology document.
//
// Rows are never hard-deleted; when a DDS poll no longer reports a port the
// row is kept with Active=false so outstanding reservations retain their
// foreign keys.
type STP struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	StpID         string  `gorm:"uniqueIndex;size:255;not null" json:"stpId"`
	InboundPort   *string `gorm:"size:255" json:"inboundPort,omitempty"`
	OutboundPort  *string `gorm:"size:255" json:"outboundPort,omitempty"`
	InboundAlias  *string `gorm:"size:255" json:"inboundAlias,omitempty"`
	OutboundAlias *string `gorm:"size:255" json:"outboundAlias,omitempty"`
	VlanRange     string  `gorm:"size:255" json:"vlanRange"`
	Description   string  `gorm:"size:255" json:"description"`
	Active        bool    `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the database table name.
func (STP) TableName() string {
	return "stp"
}

// URN returns the full network URN of the port.
func (s *STP) URN() string {
	return URNPrefix + s.StpID
}

// URNWithVlan returns the qualified STP identifier used in reserve requests.
func (s *STP) URNWithVlan(vlan int) string {
	return fmt.Sprintf("%s%s?vlan=%d", URNPrefix, s.StpID, vlan)
}

// HasAlias reports whether both unidirectional members of the port alias a
// peer port on another domain, which makes the STP an SDP endpoint candidate.
func (s *STP) HasAlias() bool {
	return s.InboundAlias != nil && s.OutboundAlias != nil
}
