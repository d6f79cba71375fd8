package jirax

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// DefaultConcurrency bounds simultaneous ticket fetches.
const DefaultConcurrency = 10

// Enricher runs the second phase of a cache run: gathering ticket metadata
// for every issue key mentioned in the persisted messages. It is purely
// additive — message persistence never depends on its outcome.
type Enricher struct {
	api         TicketAPI
	log         zerolog.Logger
	concurrency int
}

// NewEnricher creates an Enricher over the given ticket API.
func NewEnricher(api TicketAPI, logger zerolog.Logger) *Enricher {
	return &Enricher{
		api:         api,
		log:         logger,
		concurrency: DefaultConcurrency,
	}
}

// CollectIssueKeys unions the issue keys of all messages, deduplicated with
// first-occurrence order preserved.
func CollectIssueKeys(messages []models.Message) []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, m := range messages {
		for _, k := range m.IssueKeys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Enrich fetches every key concurrently and returns the tickets that
// resolved, sorted by id for deterministic writes. Each key's failure is
// isolated: it is logged with the ticket id and dropped.
func (e *Enricher) Enrich(ctx context.Context, keys []string) []models.Ticket {
	if len(keys) == 0 {
		return nil
	}
	e.log.Info().Int("tickets", len(keys)).Msg("fetching issue ticket metadata")

	var mu sync.Mutex
	var tickets []models.Ticket

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			ticket, err := e.api.Ticket(gctx, key)
			if err != nil {
				e.log.Warn().Str("ticket", key).Err(err).Msg("failed to fetch ticket")
				return nil
			}
			mu.Lock()
			tickets = append(tickets, *ticket)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors; failures are logged above

	sort.Slice(tickets, func(i, j int) bool { return tickets[i].TicketID < tickets[j].TicketID })

	e.log.Info().
		Int("fetched", len(tickets)).
		Int("failed", len(keys)-len(tickets)).
		Msg("ticket enrichment complete")
	return tickets
}
