package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/gatebot/internal/domain"
)

func newTestStore(t *testing.T) (*FileStore, func() time.Time) {
	t.Helper()
	dir := t.TempDir()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	fs, err := NewFileStore(Options{
		DataFile:  filepath.Join(dir, "data", "bot_data.json"),
		BackupDir: filepath.Join(dir, "data", "backups"),
		Now:       clock,
	})
	require.NoError(t, err)
	return fs, clock
}

func TestLoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	fs, _ := newTestStore(t)

	snap := fs.Load()
	require.NotNil(t, snap)
	assert.True(t, Validate(snap))
	assert.Empty(t, snap.Referrals)
	assert.Empty(t, snap.Users)
	assert.NotZero(t, snap.LastUpdated)
}

func TestLoadMalformedFileReturnsEmptySnapshot(t *testing.T) {
	fs, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(fs.Path(), []byte("{not json"), 0o644))

	snap := fs.Load()
	assert.True(t, Validate(snap))
	assert.Empty(t, snap.ReferredUsers)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)

	created := domain.Now()
	ref := domain.ReferralRecord{
		Code:           "ABC12345",
		OwnerID:        1001,
		OwnerUsername:  "alice",
		OwnerFirstName: "Alice",
		ReferralCount:  2,
		CreatedAt:      created,
	}
	user := domain.UserRecord{
		ID:           1001,
		IsSubscribed: true,
		LastCheck:    created,
		ReferralCode: "ABC12345",
		JoinDate:     created,
	}

	snap := NewSnapshot()
	snap.Referrals = append(snap.Referrals, ReferralEntryFrom(ref))
	snap.UserReferrals[1001] = "ABC12345"
	snap.ReferredUsers = append(snap.ReferredUsers, 2001, 2002)
	snap.Users[1001] = UserEntryFrom(user)
	require.NoError(t, fs.Save(snap))

	got := fs.Load()
	require.True(t, Validate(got))
	require.Len(t, got.Referrals, 1)
	assert.Equal(t, ref, got.Referrals[0].Record())
	assert.Equal(t, "ABC12345", got.UserReferrals[1001])
	assert.Equal(t, []int64{2001, 2002}, got.ReferredUsers)
	assert.Equal(t, user, got.Users[1001].Record())
	assert.Equal(t, snap.LastUpdated, got.LastUpdated)
}

func TestSaveWritesCamelCaseKeys(t *testing.T) {
	fs, _ := newTestStore(t)
	snap := NewSnapshot()
	snap.Users[7] = UserEntry{ID: 7}
	require.NoError(t, fs.Save(snap))

	raw, err := os.ReadFile(fs.Path())
	require.NoError(t, err)
	for _, key := range []string{`"referrals"`, `"userReferrals"`, `"referredUsers"`, `"users"`, `"lastUpdated"`, `"isSubscribed"`} {
		assert.Contains(t, string(raw), key)
	}
}

func TestSaveKeepsNewestBackups(t *testing.T) {
	fs, _ := newTestStore(t)

	for i := 0; i < 8; i++ {
		snap := NewSnapshot()
		snap.ReferredUsers = append(snap.ReferredUsers, int64(i))
		require.NoError(t, fs.Save(snap))
	}

	backups, err := fs.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, DefaultKeepBackups)

	// The newest backup holds the state written by the 7th save.
	raw, err := os.ReadFile(filepath.Join(fs.BackupDir(), backups[0]))
	require.NoError(t, err)
	var newest Snapshot
	require.NoError(t, json.Unmarshal(raw, &newest))
	assert.Equal(t, []int64{6}, newest.ReferredUsers)

	final := fs.Load()
	assert.Equal(t, []int64{7}, final.ReferredUsers)
}

func TestFailedSavesStayWithinBackupCap(t *testing.T) {
	fs, _ := newTestStore(t)
	require.NoError(t, fs.Save(NewSnapshot()))

	fs.write = func(string, []byte) error { return errors.New("disk full") }
	for i := 0; i < DefaultKeepBackups+3; i++ {
		require.Error(t, fs.Save(NewSnapshot()))
	}

	backups, err := fs.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, DefaultKeepBackups)
}

func TestFirstSaveWritesNoBackup(t *testing.T) {
	fs, _ := newTestStore(t)
	require.NoError(t, fs.Save(NewSnapshot()))

	backups, err := fs.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestFileInfo(t *testing.T) {
	fs, _ := newTestStore(t)
	assert.False(t, fs.FileInfo().Exists)

	require.NoError(t, fs.Save(NewSnapshot()))
	info := fs.FileInfo()
	assert.True(t, info.Exists)
	assert.Positive(t, info.Size)
	assert.False(t, info.LastModified.IsZero())
}

func TestValidate(t *testing.T) {
	assert.False(t, Validate(nil))
	assert.True(t, Validate(NewSnapshot()))

	partial := NewSnapshot()
	partial.Users = nil
	assert.False(t, Validate(partial))

	partial = NewSnapshot()
	partial.ReferredUsers = nil
	assert.False(t, Validate(partial))
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	_, err := NewFileStore(Options{})
	assert.Error(t, err)
}

func TestZeroTimestampsRoundTrip(t *testing.T) {
	entry := UserEntryFrom(domain.UserRecord{ID: 9})
	assert.Zero(t, entry.LastCheck)
	assert.Zero(t, entry.JoinDate)
	assert.True(t, entry.Record().LastCheck.IsZero())
}
