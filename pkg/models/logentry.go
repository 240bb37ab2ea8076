package models

import "time"

// LogEntry is one line of a reservation's human-readable event log.
// Entries are append-only; the GUI streams them over SSE.
type LogEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ReservationID uint      `gorm:"not null;index" json:"reservationId"`
	Timestamp     time.Time `gorm:"not null;index" json:"timestamp"`
	Message       string    `gorm:"not null" json:"message"`
	Module        string    `gorm:"size:128" json:"module,omitempty"`
	Function      string    `gorm:"size:128" json:"function,omitempty"`
	Line          int       `json:"line,omitempty"`
}

// TableName specifies the database table name.
func (LogEntry) TableName() string {
	return "log"
}
