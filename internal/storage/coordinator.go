package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/gatebot/core/logger"
)

// SnapshotFile is the backing file used by the Coordinator.
type SnapshotFile interface {
	Load() *Snapshot
	Save(*Snapshot) error
}

// Section contributes its part of the state to a snapshot being written.
type Section interface {
	Export(*Snapshot)
}

// SectionFunc adapts a function to Section.
type SectionFunc func(*Snapshot)

// Export calls f(snap).
func (f SectionFunc) Export(snap *Snapshot) { f(snap) }

// Coordinator serializes snapshot writes shared by several stores. Each
// Persist rebuilds the whole file from the current state of every section so
// a write from one store never drops another store's changes.
type Coordinator struct {
	mu       sync.Mutex
	file     SnapshotFile
	sections []Section
	onSave   func(err error, took time.Duration)
}

// NewCoordinator wraps file. onSave, when set, observes every write.
func NewCoordinator(file SnapshotFile, onSave func(err error, took time.Duration)) *Coordinator {
	return &Coordinator{file: file, onSave: onSave}
}

// Register adds a section. Sections export in registration order.
func (c *Coordinator) Register(s Section) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections = append(c.sections, s)
}

// Load reads the current snapshot from the backing file.
func (c *Coordinator) Load() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Load()
}

// Persist writes a fresh snapshot. Sections must not call Persist from
// inside Export.
func (c *Coordinator) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storage: persist: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	snap := NewSnapshot()
	for _, s := range c.sections {
		s.Export(snap)
	}
	err := c.file.Save(snap)
	took := logger.Took(start)
	if c.onSave != nil {
		c.onSave(err, took)
	}
	if err != nil {
		logger.Error(ctx, component, "persist.fail",
			slog.String("err", err.Error()),
			slog.Duration("duration", took),
		)
		return err
	}
	return nil
}
