package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"stevedore/internal/apperrors"
)

// state holds all records. Transactions clone it, mutate the clone, and
// swap it in on commit.
type state struct {
	tasks     map[string]*Task
	apps      map[string]*App
	folders   map[string]*Folder
	settings  map[string]*AppFolderSettings // app + "\x00" + folder
	locations map[string]*StorageLocation
}

func newState() *state {
	return &state{
		tasks:     map[string]*Task{},
		apps:      map[string]*App{},
		folders:   map[string]*Folder{},
		settings:  map[string]*AppFolderSettings{},
		locations: map[string]*StorageLocation{},
	}
}

func settingsKey(app, folder string) string {
	return app + "\x00" + folder
}

func (s *state) clone() *state {
	return &state{
		tasks:     maps.Clone(s.tasks),
		apps:      maps.Clone(s.apps),
		folders:   maps.Clone(s.folders),
		settings:  maps.Clone(s.settings),
		locations: maps.Clone(s.locations),
	}
}

func cloneTask(t *Task) *Task {
	c := *t
	c.Updates = slices.Clone(t.Updates)
	return &c
}

func (s *state) getTask(id string) (*Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.NotFound("task", id)
	}
	return cloneTask(t), nil
}

func (s *state) mutateTask(id string, mutate func(*Task)) error {
	t, ok := s.tasks[id]
	if !ok {
		return apperrors.NotFound("task", id)
	}
	c := cloneTask(t)
	mutate(c)
	s.tasks[id] = c
	return nil
}

func (s *state) registerCompleted(id string, completion TaskCompletion) error {
	return s.mutateTask(id, func(t *Task) {
		now := time.Now()
		t.CompletedAt = &now
		success := completion.Success
		t.Success = &success
		t.RequeueDelay = completion.RequeueDelay
		if completion.Error != nil {
			t.ErrorAt = &now
			t.ErrorCode = completion.Error.Code
			t.ErrorMessage = completion.Error.Message
			t.ErrorDetails = completion.Error.Details
		}
	})
}

func (s *state) recordError(id string, taskErr TaskError) error {
	return s.mutateTask(id, func(t *Task) {
		now := time.Now()
		t.ErrorAt = &now
		t.ErrorCode = taskErr.Code
		t.ErrorMessage = taskErr.Message
		t.ErrorDetails = taskErr.Details
	})
}

// Memory is an in-memory Store. The platform's database-backed
// implementation satisfies the same interface in production deployments.
type Memory struct {
	mu sync.RWMutex
	st *state
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func (m *Memory) Tasks() TaskStore     { return memTasks{m} }
func (m *Memory) Apps() AppStore       { return memApps{m} }
func (m *Memory) Folders() FolderStore { return memFolders{m} }

// InTransaction clones the state, applies fn's writes to the clone, and
// swaps it in only when fn succeeds. Concurrent transactions serialize on
// the store lock.
func (m *Memory) InTransaction(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := m.st.clone()
	if err := fn(&txStore{st: clone}); err != nil {
		return err
	}
	m.st = clone
	return nil
}

type memTasks struct{ m *Memory }

func (t memTasks) Get(ctx context.Context, id string) (*Task, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.m.st.getTask(id)
}

func (t memTasks) Put(ctx context.Context, task *Task) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.st.tasks[task.ID] = cloneTask(task)
	return nil
}

func (t memTasks) RegisterStarted(ctx context.Context, id string, startContext map[string]any) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.st.mutateTask(id, func(task *Task) {
		now := time.Now()
		task.StartedAt = &now
		task.StartContext = startContext
	})
}

func (t memTasks) RegisterCompleted(ctx context.Context, id string, completion TaskCompletion) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.st.registerCompleted(id, completion)
}

func (t memTasks) RecordError(ctx context.Context, id string, taskErr TaskError) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.st.recordError(id, taskErr)
}

func (t memTasks) AppendUpdate(ctx context.Context, id string, update TaskUpdate) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.m.st.mutateTask(id, func(task *Task) {
		task.Updates = append(task.Updates, update)
	})
}

type memApps struct{ m *Memory }

func (a memApps) GetEnabled(ctx context.Context, identifier string) (*App, error) {
	a.m.mu.RLock()
	defer a.m.mu.RUnlock()
	return getEnabledApp(a.m.st, identifier)
}

func getEnabledApp(st *state, identifier string) (*App, error) {
	app, ok := st.apps[identifier]
	if !ok || !app.Enabled {
		return nil, apperrors.NotFound("app", identifier)
	}
	c := *app
	return &c, nil
}

func (a memApps) Put(ctx context.Context, app *App) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	c := *app
	a.m.st.apps[app.Identifier] = &c
	return nil
}

type memFolders struct{ m *Memory }

func (f memFolders) GetMany(ctx context.Context, ids []string) (map[string]Folder, error) {
	f.m.mu.RLock()
	defer f.m.mu.RUnlock()
	found := make(map[string]Folder, len(ids))
	for _, id := range ids {
		if folder, ok := f.m.st.folders[id]; ok {
			found[id] = *folder
		}
	}
	return found, nil
}

func (f memFolders) AppSettings(ctx context.Context, appIdentifier string, folderIDs []string) (map[string]AppFolderSettings, error) {
	f.m.mu.RLock()
	defer f.m.mu.RUnlock()
	found := make(map[string]AppFolderSettings, len(folderIDs))
	for _, id := range folderIDs {
		if s, ok := f.m.st.settings[settingsKey(appIdentifier, id)]; ok {
			found[id] = *s
		}
	}
	return found, nil
}

func (f memFolders) StorageLocation(ctx context.Context, id string) (*StorageLocation, error) {
	f.m.mu.RLock()
	defer f.m.mu.RUnlock()
	loc, ok := f.m.st.locations[id]
	if !ok {
		return nil, apperrors.NotFound("storage location", id)
	}
	c := *loc
	return &c, nil
}

func (f memFolders) Put(ctx context.Context, folder *Folder) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	c := *folder
	f.m.st.folders[folder.ID] = &c
	return nil
}

func (f memFolders) PutSettings(ctx context.Context, settings *AppFolderSettings) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	c := *settings
	f.m.st.settings[settingsKey(settings.AppIdentifier, settings.FolderID)] = &c
	return nil
}

func (f memFolders) PutLocation(ctx context.Context, location *StorageLocation) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	c := *location
	f.m.st.locations[location.ID] = &c
	return nil
}

// txStore is the transactional view over a cloned state. No locking: the
// owning transaction holds the store lock for its whole duration.
type txStore struct{ st *state }

func (t *txStore) Tasks() TaskStore     { return txTasks{t.st} }
func (t *txStore) Apps() AppStore       { return txApps{t.st} }
func (t *txStore) Folders() FolderStore { return txFolders{t.st} }

func (t *txStore) InTransaction(ctx context.Context, fn func(tx Store) error) error {
	// Already inside a transaction; run against the same view.
	return fn(t)
}

type txTasks struct{ st *state }

func (t txTasks) Get(ctx context.Context, id string) (*Task, error) {
	return t.st.getTask(id)
}

func (t txTasks) Put(ctx context.Context, task *Task) error {
	t.st.tasks[task.ID] = cloneTask(task)
	return nil
}

func (t txTasks) RegisterStarted(ctx context.Context, id string, startContext map[string]any) error {
	return t.st.mutateTask(id, func(task *Task) {
		now := time.Now()
		task.StartedAt = &now
		task.StartContext = startContext
	})
}

func (t txTasks) RegisterCompleted(ctx context.Context, id string, completion TaskCompletion) error {
	return t.st.registerCompleted(id, completion)
}

func (t txTasks) RecordError(ctx context.Context, id string, taskErr TaskError) error {
	return t.st.recordError(id, taskErr)
}

func (t txTasks) AppendUpdate(ctx context.Context, id string, update TaskUpdate) error {
	return t.st.mutateTask(id, func(task *Task) {
		task.Updates = append(task.Updates, update)
	})
}

type txApps struct{ st *state }

func (a txApps) GetEnabled(ctx context.Context, identifier string) (*App, error) {
	return getEnabledApp(a.st, identifier)
}

func (a txApps) Put(ctx context.Context, app *App) error {
	c := *app
	a.st.apps[app.Identifier] = &c
	return nil
}

type txFolders struct{ st *state }

func (f txFolders) GetMany(ctx context.Context, ids []string) (map[string]Folder, error) {
	found := make(map[string]Folder, len(ids))
	for _, id := range ids {
		if folder, ok := f.st.folders[id]; ok {
			found[id] = *folder
		}
	}
	return found, nil
}

func (f txFolders) AppSettings(ctx context.Context, appIdentifier string, folderIDs []string) (map[string]AppFolderSettings, error) {
	found := make(map[string]AppFolderSettings, len(folderIDs))
	for _, id := range folderIDs {
		if s, ok := f.st.settings[settingsKey(appIdentifier, id)]; ok {
			found[id] = *s
		}
	}
	return found, nil
}

func (f txFolders) StorageLocation(ctx context.Context, id string) (*StorageLocation, error) {
	loc, ok := f.st.locations[id]
	if !ok {
		return nil, apperrors.NotFound("storage location", id)
	}
	c := *loc
	return &c, nil
}

func (f txFolders) Put(ctx context.Context, folder *Folder) error {
	c := *folder
	f.st.folders[folder.ID] = &c
	return nil
}

func (f txFolders) PutSettings(ctx context.Context, settings *AppFolderSettings) error {
	c := *settings
	f.st.settings[settingsKey(settings.AppIdentifier, settings.FolderID)] = &c
	return nil
}

func (f txFolders) PutLocation(ctx context.Context, location *StorageLocation) error {
	c := *location
	f.st.locations[location.ID] = &c
	return nil
}
