// Package topology keeps the local STP and SDP inventory in sync with the
// network topology published through an NSI Document Distribution Service.
//
// The DDS serves an index of documents whose content is base64-encoded,
// gzip-compressed XML. Topology documents are NML; each one describes the
// bidirectional ports of a single network and the aliases that stitch
// networks together.
package topology

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/nsi"
)

const (
	DiscoveryMimeType = "vnd.ogf.nsi.nsa.v1+xml"
	TopologyMimeType  = "vnd.ogf.nsi.topology.v2+xml"
)

// Documents holds decoded DDS documents keyed by mime type, then document id.
type Documents map[string]map[string][]byte

// Topologies returns the decoded topology documents by network id.
func (d Documents) Topologies() map[string][]byte {
	return d[TopologyMimeType]
}

// decodeContent reverses the DDS document encoding: base64, then gzip.
func decodeContent(content string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to base64-decode document content: %w", err)
	}
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress document content: %w", err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// FetchDocuments retrieves the DDS index from url and returns every document
// it references, decoded. Documents of unknown types are kept too; callers
// filter by mime type.
func FetchDocuments(ctx context.Context, client *nsi.Client, url string) (Documents, error) {
	raw, err := client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch DDS index: %w", err)
	}

	index, err := nsi.ParseDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DDS index: %w", err)
	}

	// The index is a documents element, possibly wrapped in a collection
	// envelope depending on the DDS implementation.
	entries, ok := index.Dig("documents", "document")
	if !ok {
		for root := range index {
			if value, found := index.Dig(root, "documents", "document"); found {
				entries = value
				break
			}
		}
	}

	documents := Documents{}
	for _, entry := range nsi.List(entries) {
		document, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		docType, _ := document["type"].(string)
		docID, _ := document["id"].(string)
		content, _ := document["content"].(string)
		if docType == "" || docID == "" {
			logger.Warn("skipping DDS document without type or id")
			continue
		}

		decoded, err := decodeContent(content)
		if err != nil {
			logger.Warn("skipping undecodable DDS document", "id", docID, "error", err)
			continue
		}
		if documents[docType] == nil {
			documents[docType] = map[string][]byte{}
		}
		documents[docType][docID] = decoded
	}
	return documents, nil
}
