package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/racedraft/go/internal/draft/engine"
	"github.com/mcdev12/racedraft/go/internal/draft/events"
	"github.com/mcdev12/racedraft/go/internal/draft/outbox"
)

// Memory keeps drafts and their outbox in process memory. Each draft has
// its own lock, so updates to one draft are serialised and different drafts
// never contend.
type Memory struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	drafts map[uuid.UUID]*memoryDraft

	outboxMu sync.Mutex
	outbox   []*outbox.OutboxEvent
	notify   chan string
	closed   bool
}

type memoryDraft struct {
	mu    sync.Mutex
	state *engine.State
}

func NewMemory(clock clockwork.Clock) *Memory {
	return &Memory{
		clock:  clock,
		drafts: make(map[uuid.UUID]*memoryDraft),
		notify: make(chan string, 256),
	}
}

func (m *Memory) CreateDraft(ctx context.Context, state *engine.State, evts []events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.drafts[state.Draft.ID]; exists {
		return fmt.Errorf("draft %s already exists", state.Draft.ID)
	}
	m.drafts[state.Draft.ID] = &memoryDraft{state: state.Clone()}
	m.appendOutbox(evts)
	return nil
}

func (m *Memory) entry(id uuid.UUID) (*memoryDraft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, fmt.Errorf("%w: draft %s", engine.ErrNotFound, id)
	}
	return d, nil
}

func (m *Memory) GetState(ctx context.Context, id uuid.UUID) (*engine.State, error) {
	d, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Clone(), nil
}

// UpdateState applies fn to a working copy under the draft's lock and keeps
// the copy only if fn succeeds.
func (m *Memory) UpdateState(ctx context.Context, id uuid.UUID, fn func(*engine.State) ([]events.Event, error)) (*engine.State, error) {
	d, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	work := d.state.Clone()
	evts, err := fn(work)
	if err != nil {
		return nil, err
	}
	d.state = work
	m.appendOutbox(evts)
	return work.Clone(), nil
}

func (m *Memory) TouchParticipant(ctx context.Context, draftID uuid.UUID, userID string, at time.Time) error {
	d, err := m.entry(draftID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	p := d.state.Participant(userID)
	if p == nil {
		return fmt.Errorf("%w: participant not found", engine.ErrNotFound)
	}
	p.LastSeenAt = at
	return nil
}

func (m *Memory) appendOutbox(evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	now := m.clock.Now()
	for _, e := range evts {
		row := &outbox.OutboxEvent{
			ID:        uuid.New(),
			DraftID:   e.DraftID,
			EventType: e.Type,
			Payload:   e.Payload,
			CreatedAt: now,
		}
		m.outbox = append(m.outbox, row)
		if m.closed {
			continue
		}
		select {
		case m.notify <- row.ID.String():
		default:
			// Listener is behind; its sweep will find the row.
		}
	}
}

func (m *Memory) FetchUnsentOutbox(ctx context.Context, limit int32) ([]outbox.OutboxEvent, error) {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	var out []outbox.OutboxEvent
	for _, e := range m.outbox {
		if int32(len(out)) >= limit {
			break
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *Memory) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	// Sent rows are dropped; only unsent rows are ever kept.
	for i, e := range m.outbox {
		if e.ID == id {
			m.outbox = slices.Delete(m.outbox, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("outbox event %s not found", id)
}

func (m *Memory) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*outbox.OutboxEvent, error) {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	for _, e := range m.outbox {
		if e.ID == id {
			ev := *e
			return &ev, nil
		}
	}
	return nil, outbox.ErrEventNotFound
}

func (m *Memory) CountUnsentOutbox(ctx context.Context) (int64, error) {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()

	return int64(len(m.outbox)), nil
}

// Notify, Ping and Close let the outbox listener relay from memory the same
// way it does from Postgres LISTEN/NOTIFY.
func (m *Memory) Notify() <-chan string { return m.notify }

func (m *Memory) Ping() error { return nil }

func (m *Memory) Close() error {
	m.outboxMu.Lock()
	defer m.outboxMu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.notify)
	}
	return nil
}
