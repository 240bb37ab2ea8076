package nsi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anaeng/aura/pkg/fsm"
)

func TestConnectionStatusLocalState(t *testing.T) {
	tests := []struct {
		name   string
		status ConnectionStatus
		want   fsm.State
	}{
		{
			name:   "provisioned with active dataplane",
			status: ConnectionStatus{ProvisionState: "Provisioned", DataPlaneActive: true},
			want:   fsm.ConnectionActive,
		},
		{
			name:   "provisioned before dataplane comes up",
			status: ConnectionStatus{ProvisionState: "Provisioned", DataPlaneActive: false},
			want:   fsm.ConnectionProvisioned,
		},
		{
			name:   "released circuit falls back to committed",
			status: ConnectionStatus{ProvisionState: "Released", DataPlaneActive: false},
			want:   fsm.ConnectionReserveCommitted,
		},
		{
			name:   "terminated lifecycle wins over everything",
			status: ConnectionStatus{LifecycleState: "Terminated", ProvisionState: "Provisioned", DataPlaneActive: true},
			want:   fsm.ConnectionTerminated,
		},
		{
			name:   "failed lifecycle",
			status: ConnectionStatus{LifecycleState: "Failed"},
			want:   fsm.ConnectionFailed,
		},
		{
			name:   "held reservation not yet committed",
			status: ConnectionStatus{ReservationState: "ReserveHeld"},
			want:   fsm.ConnectionReserveHeld,
		},
		{
			name:   "failed reservation",
			status: ConnectionStatus{ReservationState: "ReserveFailed"},
			want:   fsm.ConnectionReserveFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.LocalState())
		})
	}
}
