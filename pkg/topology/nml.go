package topology

import (
	"fmt"
	"strings"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/nsi"
)

// NML relation types used by NSI topology documents.
const (
	relationHasInboundPort  = "http://schemas.ogf.org/nml/2013/05/base#hasInboundPort"
	relationHasOutboundPort = "http://schemas.ogf.org/nml/2013/05/base#hasOutboundPort"
	relationIsAlias         = "http://schemas.ogf.org/nml/2013/05/base#isAlias"
)

func stripURN(urn string) string {
	return strings.TrimPrefix(urn, models.URNPrefix)
}

func strPtr(s string) *string {
	return &s
}

// ParseTopology parses an NML topology document into its id and the element
// tree of the Topology root.
func ParseTopology(data []byte) (string, map[string]any, error) {
	doc, err := nsi.ParseDocument(data)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse topology document: %w", err)
	}
	value, ok := doc["Topology"]
	if !ok {
		// Tolerate a differently named root as long as it is an element.
		for _, v := range doc {
			value = v
		}
	}
	topology, ok := value.(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("topology document has no element root")
	}
	id, _ := topology["id"].(string)
	return id, topology, nil
}

// indexByKey builds a lookup from a single-or-list of elements on one of
// their string fields. Elements without the field are dropped.
func indexByKey(value any, key string) map[string]map[string]any {
	indexed := map[string]map[string]any{}
	for _, item := range nsi.List(value) {
		element, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := element[key].(string); ok {
			indexed[id] = element
		}
	}
	return indexed
}

// aliasOf extracts the far end of a port's isAlias relation, if present. A
// port with multiple relations carries them as a list.
func aliasOf(port map[string]any) (string, bool) {
	for _, item := range nsi.List(port["Relation"]) {
		relation, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if relType, _ := relation["type"].(string); relType != relationIsAlias {
			continue
		}
		if far, ok := relation["PortGroup"].(map[string]any); ok {
			if id, ok := far["id"].(string); ok {
				return id, true
			}
		}
	}
	return "", false
}

// STPsFromTopology extracts one STP per bidirectional port from a parsed
// topology. Ports whose unidirectional halves cannot be resolved are kept
// with what was found, matching how incomplete topologies are tolerated
// elsewhere in the protocol.
func STPsFromTopology(topologyID string, topology map[string]any) []*models.STP {
	bidiPorts := indexByKey(topology["BidirectionalPort"], "id")
	relations := indexByKey(topology["Relation"], "type")

	inbound, ok := relations[relationHasInboundPort]
	if !ok {
		logger.Warn("cannot parse topology, no inbound port relation", "topology", topologyID)
		return nil
	}
	outbound, ok := relations[relationHasOutboundPort]
	if !ok {
		logger.Warn("cannot parse topology, no outbound port relation", "topology", topologyID)
		return nil
	}
	inboundPorts := indexByKey(inbound["PortGroup"], "id")
	outboundPorts := indexByKey(outbound["PortGroup"], "id")

	var stps []*models.STP
	for bidiID, bidiPort := range bidiPorts {
		var inboundPort, outboundPort map[string]any
		for uniID := range indexByKey(bidiPort["PortGroup"], "id") {
			switch {
			case inboundPorts[uniID] != nil:
				inboundPort = inboundPorts[uniID]
			case outboundPorts[uniID] != nil:
				outboundPort = outboundPorts[uniID]
			default:
				logger.Warn("unidirectional port not found", "topology", topologyID, "port", uniID)
			}
		}

		stp := &models.STP{
			StpID:  stripURN(bidiID),
			Active: true,
		}
		if name, ok := bidiPort["name"].(string); ok {
			stp.Description = name
		}
		if inboundPort != nil {
			stp.VlanRange, _ = inboundPort["LabelGroup"].(string)
		}
		if inboundPort != nil && outboundPort != nil {
			inLabels, _ := inboundPort["LabelGroup"].(string)
			outLabels, _ := outboundPort["LabelGroup"].(string)
			if inLabels != outLabels {
				logger.Warn("label groups of in- and outbound ports do not match",
					"topology", topologyID, "port", bidiID)
			}
			if alias, ok := aliasOf(inboundPort); ok {
				id, _ := inboundPort["id"].(string)
				stp.InboundPort = strPtr(stripURN(id))
				stp.InboundAlias = strPtr(stripURN(alias))
			}
			if alias, ok := aliasOf(outboundPort); ok {
				id, _ := outboundPort["id"].(string)
				stp.OutboundPort = strPtr(stripURN(id))
				stp.OutboundAlias = strPtr(stripURN(alias))
			}
		}
		stps = append(stps, stp)
		logger.Debug("found STP", "topology", topologyID, "stpId", stp.StpID, "vlanRange", stp.VlanRange)
	}
	return stps
}
