package a2aserver

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// TaskStore is the external collaborator that owns Task persistence: an
// in-memory map in tests, a relational store in production. Concrete
// implementations are responsible for their own serialization.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (Task, bool, error)
	CreateTask(ctx context.Context, t Task) (Task, error)
	UpdateTask(ctx context.Context, t Task) (Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// MemoryTaskStore is a mutex-guarded in-memory TaskStore, the reference
// implementation used by tests and single-process deployments. It enforces
// the task state machine: no transition leaves a terminal state.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewMemoryTaskStore returns an empty store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: map[string]Task{}}
}

// NewTaskID mints a fresh task identifier.
func NewTaskID() string { return uuid.New().String() }

func (s *MemoryTaskStore) GetTask(_ context.Context, id string) (Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok, nil
}

func (s *MemoryTaskStore) CreateTask(_ context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return t, nil
}

// UpdateTask replaces the stored task, rejecting any attempt to move a
// terminal task into a different state. Writing the same terminal state
// again (e.g. a duplicate completion event) is allowed.
func (s *MemoryTaskStore) UpdateTask(_ context.Context, t Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tasks[t.ID]
	if ok && existing.Status.State.terminal() && existing.Status.State != t.Status.State {
		return Task{}, errTaskTerminal(t.ID, existing.Status.State)
	}
	s.tasks[t.ID] = t
	return t, nil
}

func (s *MemoryTaskStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return errTaskNotFound(id)
	}
	delete(s.tasks, id)
	return nil
}
