// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testEpoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// testClock is a manually advanced clock.
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) Advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

func openTestStore(t *testing.T, seed bool) (*Store, *testClock) {
	t.Helper()

	clock := &testClock{t: testEpoch}
	opts := DefaultOptions(filepath.Join(t.TempDir(), "chat.db"))
	opts.SeedPresets = seed
	opts.Now = clock.Now
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func newTestSession(t *testing.T, store *Store, title string, at time.Time) *model.Session {
	t.Helper()

	sess := model.NewSession(title, model.PresetBalanced.Config())
	sess.CreatedAt = at
	sess.LastActive = at
	require.NoError(t, store.Sessions.Create(context.Background(), sess))
	return sess
}

func appendText(t *testing.T, store *Store, sess *model.Session, role model.Role, text string, at time.Time) *model.Message {
	t.Helper()

	ctx := context.Background()
	n, err := store.Messages.Count(ctx, sess.ID)
	require.NoError(t, err)

	msg := model.NewTextMessage(sess.ID, role, n, text)
	msg.CreatedAt = at
	require.NoError(t, store.Messages.Append(ctx, msg))
	return msg
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
}

// =============================================================================
// OPEN / SCHEMA TESTS
// =============================================================================

func TestOpen_CreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chat.db")
	opts := DefaultOptions(path)
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := Open(context.Background(), opts)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, path, store.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assertKind(t, err, ErrInvalidArgument)
}

func TestOpen_UnwritableLocation(t *testing.T) {
	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	opts := DefaultOptions(filepath.Join(blocker, "chat.db"))
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Open(context.Background(), opts)
	assertKind(t, err, ErrStorageUnavailable)
}

func TestInitSchema_Idempotent(t *testing.T) {
	store, _ := openTestStore(t, true)
	ctx := context.Background()

	sess := newTestSession(t, store, "Keep me", testEpoch)
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.InitSchema(ctx))

	got, err := store.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep me", got.Title)

	n, err := store.Templates.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(model.Presets()), n, "presets must not be seeded twice")
}

func TestReopen_KeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	opts := DefaultOptions(path)
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	store, err := Open(ctx, opts)
	require.NoError(t, err)
	sess := model.NewSession("Persistent", model.DefaultConfig())
	require.NoError(t, store.Sessions.Create(ctx, sess))
	require.NoError(t, store.Close())

	store, err = Open(ctx, opts)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Title, got.Title)
}

func TestSeedPresets(t *testing.T) {
	store, _ := openTestStore(t, true)
	ctx := context.Background()

	all, err := store.Templates.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	def, err := store.Templates.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, string(model.PresetBalanced), def.Name)
	assert.Equal(t, 0.5, def.Config.Parameters.Temperature)
}

func TestSeedPresets_NotRepeatedAfterUserDeletesAll(t *testing.T) {
	store, _ := openTestStore(t, true)
	ctx := context.Background()

	all, err := store.Templates.ListAll(ctx)
	require.NoError(t, err)
	for _, tmpl := range all {
		require.NoError(t, store.Templates.Delete(ctx, tmpl.ID))
	}

	require.NoError(t, store.InitSchema(ctx))
	n, err := store.Templates.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuildDSN(t *testing.T) {
	opts := DefaultOptions("/tmp/x.db")
	dsn := buildDSN(opts)
	assert.True(t, strings.HasPrefix(dsn, "/tmp/x.db?"))
	assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
	assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	assert.Contains(t, dsn, "_pragma=journal_mode(WAL)")
	assert.Contains(t, dsn, "_txlock=immediate")

	mem := buildDSN(DefaultOptions(":memory:"))
	assert.NotContains(t, mem, "journal_mode")
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestError_UnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := error(newError("op", ErrTransactionFailed, cause))

	assert.True(t, errors.Is(err, ErrTransactionFailed))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "op: transaction failed: disk on fire", err.Error())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	nf := notFound("inner", "session %q", "x")
	assert.Same(t, nf, classify("outer", nf))

	wrapped := classify("outer", errors.New("boom"))
	assert.True(t, errors.Is(wrapped, ErrTransactionFailed))
}

func TestConstraintColumn(t *testing.T) {
	err := errors.New("constraint failed: UNIQUE constraint failed: templates.name (2067)")
	assert.Equal(t, "templates.name", constraintColumn(err))
	assert.Equal(t, "", constraintColumn(errors.New("other")))
}
