// Package jirax fetches issue-tracker ticket metadata and coordinates the
// enrichment phase of a cache run.
package jirax

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/rs/zerolog"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// Custom field ids for the workspace's JIRA instance. These vary between
// instances; they match the fields the original deployment used.
const (
	fieldStoryPoints = "customfield_10016"
	fieldEpicLink    = "customfield_10014"
	fieldSprints     = "customfield_10020"
	fieldTeam        = "customfield_10021"
)

// TicketAPI is the capability the enricher needs from the issue tracker.
type TicketAPI interface {
	// Ticket fetches one ticket's metadata by key (e.g. "ABC-123").
	Ticket(ctx context.Context, key string) (*models.Ticket, error)
}

// Client implements TicketAPI against a JIRA server with basic auth.
type Client struct {
	jc  *jira.Client
	log zerolog.Logger
}

// NewClient builds a JIRA-backed ticket client.
func NewClient(server, username, token string, logger zerolog.Logger) (*Client, error) {
	if server == "" {
		return nil, apierr.New(apierr.KindConfig, "jira.connect", "", fmt.Errorf("issue tracker server not configured"))
	}
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: token,
	}
	jc, err := jira.NewClient(tp.Client(), server)
	if err != nil {
		return nil, fmt.Errorf("creating jira client: %w", err)
	}
	return &Client{jc: jc, log: logger}, nil
}

// Ticket fetches one issue and maps it to the cached ticket model.
// Dependency links are kept as raw ticket ids; no transitive resolution.
func (c *Client) Ticket(ctx context.Context, key string) (*models.Ticket, error) {
	issue, resp, err := c.jc.Issue.GetWithContext(ctx, key, nil)
	if err != nil {
		return nil, mapJiraError("issue.get", "ticket="+key, resp, err)
	}
	if issue == nil || issue.Fields == nil {
		return nil, apierr.New(apierr.KindFatal, "issue.get", "ticket="+key, fmt.Errorf("empty issue payload"))
	}

	f := issue.Fields
	ticket := &models.Ticket{
		TicketID:  issue.Key,
		Summary:   f.Summary,
		Created:   time.Time(f.Created).UTC(),
		Updated:   time.Time(f.Updated).UTC(),
		Labels:    f.Labels,
		Project:   f.Project.Key,
		IssueType: f.Type.Name,
		Assignee:  "Unassigned",
		Comments:  map[string]int{},
	}

	if f.Status != nil {
		ticket.Status = f.Status.Name
	}
	if f.Priority != nil {
		ticket.Priority = f.Priority.Name
	}
	if f.Assignee != nil {
		ticket.Assignee = f.Assignee.DisplayName
	}
	if f.Resolution != nil {
		ticket.Resolution = f.Resolution.Name
	}
	if !time.Time(f.Duedate).IsZero() {
		ticket.DueDate = time.Time(f.Duedate).Format("2006-01-02")
	}

	for _, comp := range f.Components {
		ticket.Components = append(ticket.Components, comp.Name)
	}
	for _, ver := range f.FixVersions {
		ticket.FixVersions = append(ticket.FixVersions, ver.Name)
	}

	for _, link := range f.IssueLinks {
		switch {
		case link.OutwardIssue != nil && link.Type.Name == "Blocks":
			ticket.Blocks = append(ticket.Blocks, link.OutwardIssue.Key)
		case link.InwardIssue != nil && link.Type.Name == "Blocks":
			ticket.BlockedBy = append(ticket.BlockedBy, link.InwardIssue.Key)
		case link.OutwardIssue != nil && link.Type.Name == "Depends":
			ticket.DependsOn = append(ticket.DependsOn, link.OutwardIssue.Key)
		case link.OutwardIssue != nil && link.Type.Name == "Relates":
			ticket.Related = append(ticket.Related, link.OutwardIssue.Key)
		}
	}

	if f.Comments != nil {
		for _, comment := range f.Comments.Comments {
			ticket.Comments[comment.Author.DisplayName]++
		}
	}

	if v, ok := f.Unknowns[fieldStoryPoints]; ok {
		if points, ok := v.(float64); ok {
			p := int64(points)
			ticket.StoryPoints = &p
		}
	}
	if v, ok := f.Unknowns[fieldEpicLink]; ok {
		if epic, ok := v.(string); ok {
			ticket.EpicLink = epic
		}
	}
	if v, ok := f.Unknowns[fieldTeam]; ok {
		ticket.Team = teamName(v)
	}
	if v, ok := f.Unknowns[fieldSprints]; ok {
		ticket.Sprints = parseSprints(v)
	}

	return ticket, nil
}

// teamName extracts the team label from either the select-field object
// form or a plain string.
func teamName(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if name, ok := t["value"].(string); ok {
			return name
		}
		if name, ok := t["name"].(string); ok {
			return name
		}
	}
	return ""
}

// parseSprints handles both sprint field encodings: an array of objects
// with name/state, or the legacy "...[id=1,name=Sprint 3,state=ACTIVE,...]"
// strings.
func parseSprints(v interface{}) []models.Sprint {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var sprints []models.Sprint
	for _, item := range items {
		switch s := item.(type) {
		case map[string]interface{}:
			sprint := models.Sprint{Name: "Unknown", State: "Unknown"}
			if name, ok := s["name"].(string); ok {
				sprint.Name = name
			}
			if state, ok := s["state"].(string); ok {
				sprint.State = state
			}
			sprints = append(sprints, sprint)
		case string:
			sprints = append(sprints, parseSprintString(s))
		}
	}
	return sprints
}

func parseSprintString(s string) models.Sprint {
	sprint := models.Sprint{Name: "Unknown", State: "Unknown"}
	open := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if open < 0 || end <= open {
		return sprint
	}
	for _, pair := range strings.Split(s[open+1:end], ",") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		switch k {
		case "name":
			sprint.Name = v
		case "state":
			sprint.State = v
		}
	}
	return sprint
}

// mapJiraError classifies a go-jira error into the shared taxonomy.
func mapJiraError(op, entity string, resp *jira.Response, err error) error {
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return apierr.New(apierr.KindAuth, op, entity, err)
		case resp.StatusCode == http.StatusNotFound:
			return apierr.New(apierr.KindNotFound, op, entity, err)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return apierr.New(apierr.KindRetryable, op, entity, err)
		}
	}
	if apierr.KindOf(err) == apierr.KindCancelled {
		return apierr.New(apierr.KindCancelled, op, entity, err)
	}
	return apierr.New(apierr.KindFatal, op, entity, err)
}
