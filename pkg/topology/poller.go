package topology

import (
	"context"
	"time"

	"github.com/anaeng/aura/internal/logger"
	"github.com/anaeng/aura/pkg/metrics"
	"github.com/anaeng/aura/pkg/models"
	"github.com/anaeng/aura/pkg/nsi"
	"github.com/anaeng/aura/pkg/store"
)

const pollInterval = time.Minute

// Poller periodically refreshes the STP and SDP inventory from the DDS.
// Ticks are aligned to the minute; a tick that fires while the previous poll
// is still running is skipped rather than queued.
type Poller struct {
	client     *nsi.Client
	reconciler *Reconciler
	ddsURL     string

	// busy is a one-slot semaphore; TryLock semantics via select.
	busy chan struct{}
}

func NewPoller(client *nsi.Client, s *store.Store, ddsURL string) *Poller {
	return &Poller{
		client:     client,
		reconciler: NewReconciler(s),
		ddsURL:     ddsURL,
		busy:       make(chan struct{}, 1),
	}
}

// Run polls until the context is cancelled. The first poll happens
// immediately so the agent starts with a populated inventory.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	timer := time.NewTimer(untilNextMinute(time.Now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.poll(ctx)
			timer.Reset(untilNextMinute(time.Now()))
		}
	}
}

// untilNextMinute returns the duration to the next minute boundary.
func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(pollInterval).Add(pollInterval).Sub(now)
}

// poll runs one refresh unless a previous one is still in flight.
func (p *Poller) poll(ctx context.Context) {
	select {
	case p.busy <- struct{}{}:
		defer func() { <-p.busy }()
	default:
		logger.Warn("skipping topology poll, previous poll still running")
		metrics.TopologyPollsSkipped.Inc()
		return
	}

	if err := p.PollOnce(ctx); err != nil {
		logger.Error("topology poll failed", "error", err)
		metrics.TopologyPollsFailed.Inc()
	}
}

// PollOnce fetches the DDS documents and reconciles the database against
// them. Any failure aborts the pass without touching the inventory; the
// previous state stays in place until the next successful poll.
func (p *Poller) PollOnce(ctx context.Context) error {
	started := time.Now()
	documents, err := FetchDocuments(ctx, p.client, p.ddsURL)
	if err != nil {
		return err
	}

	all := collectSTPs(documents)
	if err := p.reconciler.ReconcileSTPs(ctx, all); err != nil {
		return err
	}
	if err := p.reconciler.ReconcileSDPs(ctx); err != nil {
		return err
	}

	metrics.TopologyPolls.Inc()
	logger.Debug("topology poll complete", "stps", len(all), "elapsed", time.Since(started))
	return nil
}

// collectSTPs parses every topology document and flattens the result.
func collectSTPs(documents Documents) []*models.STP {
	var all []*models.STP
	for docID, content := range documents.Topologies() {
		topologyID, topology, err := ParseTopology(content)
		if err != nil {
			logger.Warn("skipping unparsable topology document", "id", docID, "error", err)
			continue
		}
		all = append(all, STPsFromTopology(topologyID, topology)...)
	}
	return all
}
