package event

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tavola/backend/internal/domain/shared"
)

// journalEntry is one line of the event journal
type journalEntry struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Journal is a wildcard handler that appends every event to w as one JSON
// object per line
type Journal struct {
	mu         sync.Mutex
	w          io.Writer
	serializer *EventSerializer
	written    int
}

// NewJournal creates a journal writing to w
func NewJournal(w io.Writer, serializer *EventSerializer) *Journal {
	return &Journal{w: w, serializer: serializer}
}

// Handle appends event to the journal
func (j *Journal) Handle(_ context.Context, event shared.DomainEvent) error {
	payload, err := j.serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", event.EventType(), err)
	}
	line, err := json.Marshal(journalEntry{
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
	})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	j.written++
	return nil
}

// EventTypes returns nil; the journal receives all events
func (j *Journal) EventTypes() []string {
	return nil
}

// Written returns the number of events appended
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// ReadJournal decodes a journal back into events
func ReadJournal(r io.Reader, serializer *EventSerializer) ([]shared.DomainEvent, error) {
	var events []shared.DomainEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		event, err := serializer.Deserialize(entry.EventType, entry.Payload)
		if err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return events, nil
}

var _ shared.EventHandler = (*Journal)(nil)
