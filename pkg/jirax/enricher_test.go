package jirax

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// fakeTicketAPI implements TicketAPI with a function field.
type fakeTicketAPI struct {
	ticketFunc func(ctx context.Context, key string) (*models.Ticket, error)
	calls      atomic.Int64

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (f *fakeTicketAPI) Ticket(ctx context.Context, key string) (*models.Ticket, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.ticketFunc != nil {
		return f.ticketFunc(ctx, key)
	}
	return &models.Ticket{TicketID: key, Summary: "summary of " + key}, nil
}

func TestCollectIssueKeys(t *testing.T) {
	messages := []models.Message{
		{IssueKeys: []string{"ABC-1", "DEF-2"}},
		{IssueKeys: []string{"DEF-2", "GHI-3"}},
		{},
	}
	assert.Equal(t, []string{"ABC-1", "DEF-2", "GHI-3"}, CollectIssueKeys(messages))
	assert.Nil(t, CollectIssueKeys(nil))
}

func TestEnrichFetchesAllKeys(t *testing.T) {
	fake := &fakeTicketAPI{}
	enricher := NewEnricher(fake, zerolog.Nop())

	tickets := enricher.Enrich(context.Background(), []string{"DEF-2", "ABC-1", "GHI-3"})
	require.Len(t, tickets, 3)
	assert.Equal(t, int64(3), fake.calls.Load())

	// Deterministic output order regardless of completion order.
	assert.Equal(t, "ABC-1", tickets[0].TicketID)
	assert.Equal(t, "DEF-2", tickets[1].TicketID)
	assert.Equal(t, "GHI-3", tickets[2].TicketID)
}

func TestEnrichIsolatesFailures(t *testing.T) {
	fake := &fakeTicketAPI{}
	fake.ticketFunc = func(ctx context.Context, key string) (*models.Ticket, error) {
		if key == "BAD-1" {
			return nil, errors.New("404")
		}
		return &models.Ticket{TicketID: key}, nil
	}
	enricher := NewEnricher(fake, zerolog.Nop())

	tickets := enricher.Enrich(context.Background(), []string{"ABC-1", "BAD-1", "GHI-3"})
	require.Len(t, tickets, 2, "failed tickets are dropped, others continue")
	assert.Equal(t, "ABC-1", tickets[0].TicketID)
	assert.Equal(t, "GHI-3", tickets[1].TicketID)
}

func TestEnrichEmptyKeys(t *testing.T) {
	fake := &fakeTicketAPI{}
	enricher := NewEnricher(fake, zerolog.Nop())
	assert.Nil(t, enricher.Enrich(context.Background(), nil))
	assert.Equal(t, int64(0), fake.calls.Load())
}

func TestEnrichBoundsConcurrency(t *testing.T) {
	fake := &fakeTicketAPI{}
	enricher := NewEnricher(fake, zerolog.Nop())
	enricher.concurrency = 4

	keys := make([]string, 40)
	for i := range keys {
		keys[i] = "KEY-" + string(rune('A'+i%26)) + string(rune('A'+i/26))
	}
	// The 40 keys are distinct; only the concurrency bound matters here.
	enricher.Enrich(context.Background(), keys)
	assert.LessOrEqual(t, fake.maxSeen, 4)
}

func TestParseSprints(t *testing.T) {
	// Object encoding.
	sprints := parseSprints([]interface{}{
		map[string]interface{}{"name": "Sprint 12", "state": "active"},
	})
	require.Len(t, sprints, 1)
	assert.Equal(t, models.Sprint{Name: "Sprint 12", State: "active"}, sprints[0])

	// Legacy string encoding.
	sprints = parseSprints([]interface{}{
		"com.atlassian.greenhopper.service.sprint.Sprint@1a[id=42,rapidViewId=7,state=CLOSED,name=Sprint 11,startDate=2025-01-01]",
	})
	require.Len(t, sprints, 1)
	assert.Equal(t, "Sprint 11", sprints[0].Name)
	assert.Equal(t, "CLOSED", sprints[0].State)

	assert.Nil(t, parseSprints("not-a-list"))
}

func TestTeamName(t *testing.T) {
	assert.Equal(t, "Platform", teamName("Platform"))
	assert.Equal(t, "Platform", teamName(map[string]interface{}{"value": "Platform"}))
	assert.Equal(t, "", teamName(42))
}
