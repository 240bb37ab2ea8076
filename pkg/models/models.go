// Package models defines the persisted entities of the requester agent:
// STPs and SDPs discovered from DDS topology, reservations with their
// connection lifecycle state, and the per-reservation log stream.
package models

// AllModels returns all model types for database migration.
// Used by the store to run AutoMigrate on startup.
func AllModels() []any {
	return []any{
		&STP{},
		&SDP{},
		&Reservation{},
		&LogEntry{},
	}
}
