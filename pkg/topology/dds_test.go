package topology

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

// encodeContent applies the DDS document encoding: gzip, then base64.
func encodeContent(t *testing.T, document string) string {
	t.Helper()
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	_, err := writer.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func ddsIndex(t *testing.T, topologies map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><documents xmlns="http://schemas.ogf.org/nsi/2014/02/discovery/types">`)
	for id, document := range topologies {
		fmt.Fprintf(&buf,
			`<document id="%s" type="vnd.ogf.nsi.topology.v2+xml"><content contentType="application/x-gzip" contentTransferEncoding="base64">%s</content></document>`,
			id, encodeContent(t, document))
	}
	buf.WriteString(`</documents>`)
	return buf.String()
}

func TestDecodeContentRoundTrip(t *testing.T) {
	decoded, err := decodeContent(encodeContent(t, "<Topology/>"))
	require.NoError(t, err)
	assert.Equal(t, "<Topology/>", string(decoded))

	_, err = decodeContent("not base64 at all!!!")
	assert.Error(t, err)

	// Valid base64 of something that is not gzip.
	_, err = decodeContent(base64.StdEncoding.EncodeToString([]byte("plain")))
	assert.Error(t, err)
}

func TestFetchDocuments(t *testing.T) {
	index := ddsIndex(t, map[string]string{
		"urn:ogf:network:a.example:2024:topology": exampleTopology,
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(index))
	}))
	defer server.Close()

	client, err := nsi.NewClient(nsi.ClientConfig{Verify: true})
	require.NoError(t, err)

	documents, err := FetchDocuments(context.Background(), client, server.URL)
	require.NoError(t, err)

	topologies := documents.Topologies()
	require.Len(t, topologies, 1)
	assert.Contains(t, string(topologies["urn:ogf:network:a.example:2024:topology"]), "BidirectionalPort")
}

func TestPollOncePopulatesInventory(t *testing.T) {
	index := ddsIndex(t, map[string]string{
		"urn:ogf:network:a.example:2024:topology": exampleTopology,
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(index))
	}))
	defer server.Close()

	client, err := nsi.NewClient(nsi.ClientConfig{Verify: true})
	require.NoError(t, err)
	s, err := store.NewInMemory()
	require.NoError(t, err)

	poller := NewPoller(client, s, server.URL)
	require.NoError(t, poller.PollOnce(context.Background()))

	stps, err := s.ListActiveSTPs(context.Background())
	require.NoError(t, err)
	assert.Len(t, stps, 2)

	hpc, err := s.GetSTPByStpID(context.Background(), "a.example:2024:topology:hpc-1")
	require.NoError(t, err)
	assert.Equal(t, "3762-3769", hpc.VlanRange)
}

func TestUntilNextMinute(t *testing.T) {
	for _, second := range []int{0, 1, 30, 59} {
		base := time.Date(2026, 8, 24, 10, 0, second, 0, time.UTC)
		d := untilNextMinute(base)
		assert.True(t, d > 0 && d <= time.Minute, "at second %d got %v", second, d)
		assert.Zero(t, base.Add(d).Second(), "must land on a minute boundary")
	}
}
