package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dukex/patientflow/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/mohae/deepcopy"
)

// AutoSaveDelay is the quiet period after the last edit before a draft is written.
const AutoSaveDelay = 5 * time.Second

// Mode tells whether the builder creates a new flow or edits a saved one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// ModeFromQuery returns ModeEdit when the builder URL carries an edit parameter.
func ModeFromQuery(query url.Values) Mode {
	if query.Has("edit") {
		return ModeEdit
	}

	return ModeCreate
}

// Manager debounces builder edits into the draft store. Saved flows being
// edited never produce drafts.
type Manager struct {
	store  Store
	mode   Mode
	clock  clockwork.Clock
	logger *slog.Logger
	delay  time.Duration
	task   *Task

	mu      sync.Mutex
	pending *models.FlowDraft

	// writeMu orders a write in flight against ClearDraft.
	writeMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDelay overrides AutoSaveDelay.
func WithDelay(delay time.Duration) Option {
	return func(m *Manager) {
		m.delay = delay
	}
}

func NewManager(store Store, mode Mode, opts ...Option) *Manager {
	manager := &Manager{
		store:  store,
		mode:   mode,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		delay:  AutoSaveDelay,
	}

	for _, opt := range opts {
		opt(manager)
	}

	manager.logger = manager.logger.With("module", "draft")
	manager.task = NewTask(manager.clock)

	return manager
}

// ScheduleAutoSave records the builder state and writes it once no further
// edit arrives within the delay. It reports whether a write was scheduled.
func (m *Manager) ScheduleAutoSave(ctx context.Context, name, description string, nodes []*models.FlowNode, edges []*models.FlowEdge) bool {
	if m.mode == ModeEdit {
		return false
	}

	draft := &models.FlowDraft{
		Name:        strings.TrimSpace(name),
		Description: description,
		Nodes:       deepcopy.Copy(nodes).([]*models.FlowNode),
		Edges:       deepcopy.Copy(edges).([]*models.FlowEdge),
	}

	if draft.IsInitialState() {
		m.task.Cancel()
		m.take()

		return false
	}

	m.mu.Lock()
	m.pending = draft
	m.mu.Unlock()

	saveCtx := context.WithoutCancel(ctx)

	m.task.Arm(m.delay, func() {
		err := m.writePending(saveCtx)
		if err != nil {
			m.logger.ErrorContext(saveCtx, "failed to autosave flow draft", "error", err)
		}
	})

	return true
}

// Flush writes a pending draft immediately.
func (m *Manager) Flush(ctx context.Context) error {
	if m.mode == ModeEdit {
		return nil
	}

	m.task.Cancel()

	return m.writePending(ctx)
}

// LoadDraft returns the stored draft, or nil when there is none to offer.
// Expired and unreadable drafts are deleted.
func (m *Manager) LoadDraft(ctx context.Context) (*models.FlowDraft, error) {
	if m.mode == ModeEdit {
		return nil, nil
	}

	data, err := m.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoDraft) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load flow draft: %w", err)
	}

	var draft models.FlowDraft

	err = json.Unmarshal(data, &draft)
	if err != nil {
		m.logger.WarnContext(ctx, "discarding unreadable flow draft", "error", err)

		return nil, m.discard(ctx)
	}

	if draft.Expired(m.clock.Now()) {
		m.logger.InfoContext(ctx, "discarding expired flow draft", "saved_at", draft.Timestamp)

		return nil, m.discard(ctx)
	}

	return &draft, nil
}

// ClearDraft cancels any pending write and deletes the stored draft. A write
// already in flight finishes first and is then deleted.
func (m *Manager) ClearDraft(ctx context.Context) error {
	m.task.Cancel()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.take()

	return m.discard(ctx)
}

// Pending reports whether a write is scheduled.
func (m *Manager) Pending() bool {
	return m.task.Pending()
}

func (m *Manager) take() *models.FlowDraft {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := m.pending
	m.pending = nil

	return draft
}

func (m *Manager) writePending(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	draft := m.take()
	if draft == nil {
		return nil
	}

	draft.Timestamp = m.clock.Now().UTC()

	data, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode flow draft: %w", err)
	}

	err = m.store.Save(ctx, data)
	if err != nil {
		return fmt.Errorf("failed to save flow draft: %w", err)
	}

	m.logger.DebugContext(ctx, "flow draft saved", "nodes", len(draft.Nodes), "edges", len(draft.Edges))

	return nil
}

func (m *Manager) discard(ctx context.Context) error {
	err := m.store.Delete(ctx)
	if err != nil && !errors.Is(err, ErrNoDraft) {
		return fmt.Errorf("failed to delete flow draft: %w", err)
	}

	return nil
}
