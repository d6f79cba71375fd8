// Package ingest orchestrates a cache run: fetch each channel, write its
// partitions, flush the user cache, then optionally enrich tickets.
// Messages always persist before enrichment begins; a failed enrichment
// phase never rolls anything back.
package ingest

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zeebeeCoder/slack-intel/pkg/cache"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
	"github.com/zeebeeCoder/slack-intel/pkg/timewindow"
	"github.com/zeebeeCoder/slack-intel/pkg/users"
)

// MessageSource fetches one channel's messages for a window.
type MessageSource interface {
	GetMessages(ctx context.Context, channel models.Channel, window timewindow.Window) ([]models.Message, error)
}

// TicketEnricher fetches ticket metadata for a set of issue keys.
type TicketEnricher interface {
	Enrich(ctx context.Context, keys []string) []models.Ticket
}

// ServiceConfig tunes a run.
type ServiceConfig struct {
	// ChannelConcurrency caps channels processed simultaneously.
	ChannelConcurrency int
	// EnrichTickets enables the second phase.
	EnrichTickets bool
	// FallbackDate partitions messages whose own timestamp is unusable,
	// and dates the ticket partition. Defaults to today (UTC).
	FallbackDate string
}

// DefaultServiceConfig returns the defaults used by the CLI.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ChannelConcurrency: 2,
		EnrichTickets:      false,
	}
}

// Service runs the ingest pipeline.
type Service struct {
	source   MessageSource
	store    cache.Store
	userRepo *users.Cache
	enricher TicketEnricher
	log      zerolog.Logger
	cfg      ServiceConfig
}

// NewService assembles a run coordinator. enricher may be nil when ticket
// enrichment is disabled.
func NewService(source MessageSource, store cache.Store, userRepo *users.Cache, enricher TicketEnricher, logger zerolog.Logger, cfg ...ServiceConfig) *Service {
	c := DefaultServiceConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.ChannelConcurrency < 1 {
		c.ChannelConcurrency = 1
	}
	if c.FallbackDate == "" {
		c.FallbackDate = timewindow.Today()
	}
	return &Service{
		source:   source,
		store:    store,
		userRepo: userRepo,
		enricher: enricher,
		log:      logger,
		cfg:      c,
	}
}

// Run processes every channel and returns the run's statistics. Channel
// failures are recorded, not fatal; the error return is reserved for
// cancellation.
func (s *Service) Run(ctx context.Context, channels []models.Channel, window timewindow.Window) (*RunStats, error) {
	stats := NewRunStats(uuid.NewString())
	s.log.Info().
		Str("run_id", stats.RunID).
		Int("channels", len(channels)).
		Str("window", window.String()).
		Bool("enrich_tickets", s.cfg.EnrichTickets).
		Msg("starting cache run")

	jobs := make(chan models.Channel)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.ChannelConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for channel := range jobs {
				s.processChannel(ctx, channel, window, stats)
			}
		}()
	}

dispatch:
	for _, channel := range channels {
		select {
		case jobs <- channel:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		stats.Finish()
		return stats, err
	}

	s.flushUsers(stats)

	if s.cfg.EnrichTickets && s.enricher != nil {
		s.enrichTickets(ctx, stats)
	}

	stats.Finish()
	summary := stats.Summarize()
	s.log.Info().
		Str("run_id", stats.RunID).
		Int("messages", summary.MessagesFetched).
		Int("partitions", summary.PartitionsWritten).
		Int("channels_failed", summary.ChannelsFailed).
		Dur("duration", stats.Duration()).
		Msg("cache run complete")
	return stats, nil
}

// processChannel fetches one channel, groups its messages by their own
// UTC date, and writes one partition per date.
func (s *Service) processChannel(ctx context.Context, channel models.Channel, window timewindow.Window, stats *RunStats) {
	result := ChannelResult{Channel: channel.Alias(), Status: StatusCached}

	messages, err := s.source.GetMessages(ctx, channel, window)
	if err != nil {
		s.log.Error().Str("channel", channel.Alias()).Err(err).Msg("channel fetch failed")
		result.Status = StatusError
		result.Err = err
		stats.AddChannel(result)
		return
	}
	if len(messages) == 0 {
		result.Status = StatusEmpty
		stats.AddChannel(result)
		return
	}
	result.Messages = len(messages)

	byDate := make(map[string][]models.Message)
	for _, msg := range messages {
		date := msg.PartitionDate()
		if msg.Timestamp.IsZero() {
			date = s.cfg.FallbackDate
		}
		byDate[date] = append(byDate[date], msg)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, date := range dates {
		path, err := s.store.SaveMessages(channel, date, byDate[date])
		if err != nil {
			// Fatal to this partition only; the rest are still attempted.
			s.log.Error().Str("channel", channel.Alias()).Str("dt", date).Err(err).Msg("partition write failed")
			result.Status = StatusError
			result.Err = err
			continue
		}
		result.Partitions = append(result.Partitions, path)
	}
	stats.AddPartitions(len(result.Partitions))

	if s.cfg.EnrichTickets {
		stats.AddIssueKeys(collectKeys(messages))
	}
	stats.AddChannel(result)
}

func (s *Service) flushUsers(stats *RunStats) {
	snapshot := s.userRepo.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	all := make([]models.User, 0, len(snapshot))
	for _, u := range snapshot {
		all = append(all, u)
	}
	path, err := s.store.SaveUsers(all)
	if err != nil {
		s.log.Error().Err(err).Msg("user cache write failed")
		stats.AddError(err)
		return
	}
	stats.SetUsersCached(len(all))
	s.log.Info().Int("users", len(all)).Str("path", path).Msg("flushed user cache")
}

func (s *Service) enrichTickets(ctx context.Context, stats *RunStats) {
	keys := stats.IssueKeys()
	if len(keys) == 0 {
		s.log.Info().Msg("no issue keys found in cached messages")
		return
	}

	tickets := s.enricher.Enrich(ctx, keys)
	stats.SetTickets(len(tickets), len(keys)-len(tickets))
	if len(tickets) == 0 {
		return
	}

	path, err := s.store.SaveIssueTickets(s.cfg.FallbackDate, tickets)
	if err != nil {
		s.log.Error().Err(err).Msg("ticket partition write failed")
		stats.AddError(err)
		return
	}
	s.log.Info().Int("tickets", len(tickets)).Str("path", path).Msg("wrote ticket partition")
}

func collectKeys(messages []models.Message) []string {
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
