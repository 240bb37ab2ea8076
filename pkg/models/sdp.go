package models

import "time"

// SDP is a Service Demarcation Point: a bidirectional inter-domain link
// between two STPs that mutually alias each other.
//
// The (StpAID, StpZID) pair is unordered for identity purposes; the reconcile
// pass stores each link exactly once and never both (A,Z) and (Z,A).
type SDP struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	StpAID      uint   `gorm:"not null;index:idx_sdp_pair" json:"stpAId"`
	StpZID      uint   `gorm:"not null;index:idx_sdp_pair" json:"stpZId"`
	VlanRange   string `gorm:"size:255" json:"vlanRange"`
	Description string `gorm:"size:255" json:"description"`
	Active      bool   `gorm:"not null;default:true" json:"active"`

	StpA *STP `gorm:"foreignKey:StpAID" json:"stpA,omitempty"`
	StpZ *STP `gorm:"foreignKey:StpZID" json:"stpZ,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the database table name.
func (SDP) TableName() string {
	return "sdp"
}

// SamePair reports whether the SDP links the given STP rows, in either order.
func (s *SDP) SamePair(aID, zID uint) bool {
	return (s.StpAID == aID && s.StpZID == zID) || (s.StpAID == zID && s.StpZID == aID)
}
