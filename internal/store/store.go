// Package store defines the persistence contract this service needs from
// the platform's task/app/folder records, treating them as opaque entities
// with a narrow read/write surface.
package store

import (
	"context"
	"time"

	"stevedore/internal/profile"
)

// Permission is a folder-level capability granted to an app.
type Permission string

const (
	PermReadObjects  Permission = "READ_OBJECTS"
	PermWriteObjects Permission = "WRITE_OBJECTS"
)

// App is a platform tenant. Profiles declare its deployable worker
// configurations.
type App struct {
	Identifier string
	Enabled    bool
	Profiles   map[string]profile.Spec

	// Folder-scope defaults, overridable per folder via AppFolderSettings.
	DefaultFolderEnabled     bool
	DefaultFolderPermissions []Permission
}

// Folder is a storage folder; its content lives in a storage location.
type Folder struct {
	ID                string
	Name              string
	StorageLocationID string
}

// StorageLocation describes the S3-compatible bucket backing folders.
// Prefix, when set, is prepended to every object key.
type StorageLocation struct {
	ID     string
	Bucket string
	Prefix string
	Region string
}

// AppFolderSettings are per-folder overrides of an app's folder defaults.
// Nil fields inherit the app-level default.
type AppFolderSettings struct {
	AppIdentifier string
	FolderID      string
	Enabled       *bool
	Permissions   []Permission
}

// StorageAccessRule is one entry of a task's storage access policy.
type StorageAccessRule struct {
	FolderID string
	Methods  []string
	Prefix   string
}

// TaskError is the structured error detail recorded on a failed task.
type TaskError struct {
	Code    string
	Name    string
	Message string
	Stack   string
	Details map[string]any
}

// TaskCompletion carries the terminal outcome written by RegisterCompleted.
type TaskCompletion struct {
	Success      bool
	RequeueDelay time.Duration
	Error        *TaskError
}

// UploadedFile references an object a worker reported uploading.
type UploadedFile struct {
	FolderID  string
	ObjectKey string
}

// TaskUpdate is one append-only entry in a task's update log.
type TaskUpdate struct {
	At            time.Time
	Result        any
	UploadedFiles []UploadedFile
}

// Task is the narrow view of a platform task record this subsystem reads
// and mutates.
type Task struct {
	ID            string
	Data          map[string]any
	StorageAccess []StorageAccessRule

	StartedAt    *time.Time
	StartContext map[string]any

	CompletedAt  *time.Time
	Success      *bool
	RequeueDelay time.Duration

	ErrorAt      *time.Time
	ErrorCode    string
	ErrorMessage string
	ErrorDetails map[string]any

	Updates []TaskUpdate
}

// TaskStore is the task read/write contract.
type TaskStore interface {
	Get(ctx context.Context, id string) (*Task, error)
	Put(ctx context.Context, task *Task) error

	// RegisterStarted stamps StartedAt and records the start context.
	RegisterStarted(ctx context.Context, id string, startContext map[string]any) error

	// RegisterCompleted stamps CompletedAt and the outcome; a completion
	// carrying an error additionally stamps the error fields.
	RegisterCompleted(ctx context.Context, id string, completion TaskCompletion) error

	// RecordError stamps the error fields without marking the task
	// completed.
	RecordError(ctx context.Context, id string, taskErr TaskError) error

	// AppendUpdate appends one entry to the task's update log; prior
	// entries are never rewritten.
	AppendUpdate(ctx context.Context, id string, update TaskUpdate) error
}

// AppStore is the app read contract.
type AppStore interface {
	// GetEnabled returns the app only when it exists and is enabled;
	// otherwise a not-found error.
	GetEnabled(ctx context.Context, identifier string) (*App, error)
	Put(ctx context.Context, app *App) error
}

// FolderStore is the folder/settings/location read contract.
type FolderStore interface {
	// GetMany returns the found folders keyed by id; requested ids with no
	// folder are simply absent from the map.
	GetMany(ctx context.Context, ids []string) (map[string]Folder, error)

	// AppSettings returns per-folder settings for the app, keyed by folder
	// id; folders with no explicit settings are absent.
	AppSettings(ctx context.Context, appIdentifier string, folderIDs []string) (map[string]AppFolderSettings, error)

	StorageLocation(ctx context.Context, id string) (*StorageLocation, error)

	Put(ctx context.Context, folder *Folder) error
	PutSettings(ctx context.Context, settings *AppFolderSettings) error
	PutLocation(ctx context.Context, location *StorageLocation) error
}

// Store aggregates the per-entity stores and the transaction boundary.
type Store interface {
	Tasks() TaskStore
	Apps() AppStore
	Folders() FolderStore

	// InTransaction runs fn against a transactional view; all writes
	// commit together or not at all.
	InTransaction(ctx context.Context, fn func(tx Store) error) error
}
