package store

import (
	"context"

	"github.com/me/gosched/pkg/model"
)

// Store defines the accounting persistence layer. The scheduler writes
// an exit record when a process is reaped and periodic samples of its
// counters; both survive daemon restarts.
type Store interface {
	// Exit accounting
	RecordExit(ctx context.Context, rec *model.ExitRecord) error
	ListExits(ctx context.Context, opts model.ListOptions) ([]*model.ExitRecord, int, error)
	GetExit(ctx context.Context, pid model.PID) (*model.ExitRecord, error)

	// Scheduler counter history
	RecordSample(ctx context.Context, sample *model.StatSample) error
	ListSamples(ctx context.Context, opts model.ListOptions) ([]*model.StatSample, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
