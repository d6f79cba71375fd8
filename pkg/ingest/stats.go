package ingest

import (
	"sort"
	"sync"
	"time"
)

// Channel result statuses.
const (
	StatusCached = "cached"
	StatusEmpty  = "empty"
	StatusError  = "error"
)

// ChannelResult is the outcome of one channel in a run.
type ChannelResult struct {
	Channel    string
	Messages   int
	Partitions []string
	Status     string
	Err        error
}

// RunStats tracks a run's progress. All mutators are safe for concurrent
// use by the channel workers.
type RunStats struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	mu                sync.Mutex
	channels          []ChannelResult
	messagesFetched   int
	partitionsWritten int
	usersCached       int
	ticketsFetched    int
	ticketsFailed     int
	issueKeys         map[string]struct{}
	errors            []error
}

// NewRunStats starts the clock for a run.
func NewRunStats(runID string) *RunStats {
	return &RunStats{
		RunID:     runID,
		StartTime: time.Now(),
		issueKeys: make(map[string]struct{}),
	}
}

// AddChannel records one channel's outcome.
func (s *RunStats) AddChannel(result ChannelResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, result)
	s.messagesFetched += result.Messages
	if result.Err != nil {
		s.errors = append(s.errors, result.Err)
	}
}

// AddPartitions counts written partition files.
func (s *RunStats) AddPartitions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitionsWritten += n
}

// AddIssueKeys unions keys into the enrichment work set.
func (s *RunStats) AddIssueKeys(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.issueKeys[k] = struct{}{}
	}
}

// IssueKeys returns the union of collected keys, sorted.
func (s *RunStats) IssueKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.issueKeys))
	for k := range s.issueKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddError records a non-channel failure (user flush, ticket write).
func (s *RunStats) AddError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

// SetUsersCached records the flushed user count.
func (s *RunStats) SetUsersCached(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usersCached = n
}

// SetTickets records the enrichment phase outcome.
func (s *RunStats) SetTickets(fetched, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketsFetched = fetched
	s.ticketsFailed = failed
}

// Finish stops the clock.
func (s *RunStats) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
}

// Duration reports how long the run has taken so far, or took in total
// once finished.
func (s *RunStats) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Channels returns per-channel results sorted by channel alias.
func (s *RunStats) Channels() []ChannelResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelResult, len(s.channels))
	copy(out, s.channels)
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Summary is the final per-phase accounting of a run.
type Summary struct {
	Channels          int
	ChannelsFailed    int
	ChannelsEmpty     int
	MessagesFetched   int
	PartitionsWritten int
	UsersCached       int
	TicketsFetched    int
	TicketsFailed     int
	Errors            []error
}

// Summarize builds the final accounting.
func (s *RunStats) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		Channels:          len(s.channels),
		MessagesFetched:   s.messagesFetched,
		PartitionsWritten: s.partitionsWritten,
		UsersCached:       s.usersCached,
		TicketsFetched:    s.ticketsFetched,
		TicketsFailed:     s.ticketsFailed,
		Errors:            append([]error(nil), s.errors...),
	}
	for _, c := range s.channels {
		switch c.Status {
		case StatusError:
			summary.ChannelsFailed++
		case StatusEmpty:
			summary.ChannelsEmpty++
		}
	}
	return summary
}

// MessagesFetched returns the total message count across channels.
func (s *RunStats) MessagesFetched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesFetched
}
