package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/store"
)

// TopologyHandler exposes the discovered STP and SDP inventory.
type TopologyHandler struct {
	store *store.Store
}

func NewTopologyHandler(s *store.Store) *TopologyHandler {
	return &TopologyHandler{store: s}
}

// STPResponse is the response body for STP endpoints.
type STPResponse struct {
	ID          uint   `json:"id"`
	StpID       string `json:"stp_id"`
	VlanRange   string `json:"vlan_range"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// SDPResponse is the response body for SDP endpoints.
type SDPResponse struct {
	ID          uint   `json:"id"`
	StpAID      uint   `json:"stp_a_id"`
	StpZID      uint   `json:"stp_z_id"`
	VlanRange   string `json:"vlan_range"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

func stpToResponse(stp *models.STP) STPResponse {
	return STPResponse{
		ID:          stp.ID,
		StpID:       stp.StpID,
		VlanRange:   stp.VlanRange,
		Description: stp.Description,
		Active:      stp.Active,
	}
}

// ListSTPs handles GET /api/stps/.
func (h *TopologyHandler) ListSTPs(w http.ResponseWriter, r *http.Request) {
	stps, err := h.store.ListActiveSTPs(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list STPs")
		return
	}
	response := make([]STPResponse, len(stps))
	for i, stp := range stps {
		response[i] = stpToResponse(stp)
	}
	WriteJSONOK(w, response)
}

// FreeVlans handles GET /api/stps/{id}/vlans/free.
func (h *TopologyHandler) FreeVlans(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		BadRequest(w, "Invalid STP id")
		return
	}
	free, err := h.store.FreeVlanRanges(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, models.ErrSTPNotFound) {
			NotFound(w, "STP not found")
			return
		}
		InternalServerError(w, "Failed to compute free VLANs")
		return
	}
	WriteJSONOK(w, map[string]string{"free": free.String()})
}

// ListSDPs handles GET /api/sdps/.
func (h *TopologyHandler) ListSDPs(w http.ResponseWriter, r *http.Request) {
	sdps, err := h.store.ListSDPs(r.Context())
	if err != nil {
		InternalServerError(w, "Failed to list SDPs")
		return
	}
	response := make([]SDPResponse, len(sdps))
	for i, sdp := range sdps {
		response[i] = SDPResponse{
			ID:          sdp.ID,
			StpAID:      sdp.StpAID,
			StpZID:      sdp.StpZID,
			VlanRange:   sdp.VlanRange,
			Description: sdp.Description,
			Active:      sdp.Active,
		}
	}
	WriteJSONOK(w, response)
}
