package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	mu    sync.Mutex
	saved []*Snapshot
	err   error
}

func (m *memFile) Load() *Snapshot { return NewSnapshot() }

func (m *memFile) Save(s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, s)
	return nil
}

func (m *memFile) last() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

type counterSection struct {
	mu sync.Mutex
	n  int
}

func (c *counterSection) bump() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counterSection) Export(s *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.n; i++ {
		s.ReferredUsers = append(s.ReferredUsers, int64(i))
	}
}

func TestCoordinatorMergesSections(t *testing.T) {
	file := &memFile{}
	c := NewCoordinator(file, nil)
	c.Register(SectionFunc(func(s *Snapshot) { s.UserReferrals[1] = "CODE" }))
	c.Register(SectionFunc(func(s *Snapshot) { s.Users[2] = UserEntry{ID: 2} }))

	require.NoError(t, c.Persist(context.Background()))

	snap := file.last()
	require.NotNil(t, snap)
	assert.Equal(t, "CODE", snap.UserReferrals[1])
	assert.Equal(t, int64(2), snap.Users[2].ID)
}

func TestCoordinatorConcurrentPersistKeepsLatestState(t *testing.T) {
	file := &memFile{}
	sec := &counterSection{}
	c := NewCoordinator(file, nil)
	c.Register(sec)

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			sec.bump()
			assert.NoError(t, c.Persist(context.Background()))
		}()
	}
	wg.Wait()

	require.NoError(t, c.Persist(context.Background()))
	assert.Len(t, file.last().ReferredUsers, writers)
}

func TestCoordinatorReportsSaveError(t *testing.T) {
	boom := errors.New("disk full")
	file := &memFile{err: boom}

	var gotErr error
	var calls int
	c := NewCoordinator(file, func(err error, _ time.Duration) {
		calls++
		gotErr = err
	})

	err := c.Persist(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, gotErr, boom)
}

func TestCoordinatorCanceledContext(t *testing.T) {
	file := &memFile{}
	c := NewCoordinator(file, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Persist(ctx), context.Canceled)
	assert.Nil(t, file.last())
}
