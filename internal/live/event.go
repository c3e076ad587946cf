// Package live fans committed data changes out to subscribers, scoped per guild.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"guildquest/internal/review"
)

// Tables that produce change events.
const (
	TableQuests      = "quests"
	TableSubmissions = "quest_submissions"
	TableMessages    = "messages"
	TableMembers     = "group_members"
)

// Change actions.
const (
	ActionInsert = review.ActionInsert
	ActionUpdate = review.ActionUpdate
	ActionDelete = "DELETE"
)

var ErrBusClosed = errors.New("live: bus closed")

// Event is one committed change. Record carries the row as JSON.
type Event struct {
	Table    string          `json:"table"`
	Action   string          `json:"action"`
	GuildID  string          `json:"group_id"`
	RecordID string          `json:"record_id"`
	Record   json.RawMessage `json:"record,omitempty"`
	At       time.Time       `json:"at"`
}

// NewEvent marshals record into an Event stamped with the current time.
func NewEvent(table, action, guildID, recordID string, record any) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Table:    table,
		Action:   action,
		GuildID:  guildID,
		RecordID: recordID,
		Record:   raw,
		At:       time.Now().UTC(),
	}, nil
}

// Filter selects events. Zero values match everything.
type Filter struct {
	GuildID string
	Tables  []string
}

func (f Filter) Match(e Event) bool {
	if f.GuildID != "" && f.GuildID != e.GuildID {
		return false
	}
	if len(f.Tables) > 0 && !slices.Contains(f.Tables, e.Table) {
		return false
	}
	return true
}

// Bus publishes events and delivers them to matching subscribers.
// A subscription's channel is closed when its context ends or the bus closes.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, f Filter) (<-chan Event, error)
	Close() error
}
