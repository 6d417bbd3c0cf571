// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// CREATE / GET / UPDATE TESTS
// =============================================================================

func TestSession_RoundTrip(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	maxTokens := 2048
	topP := 0.95
	cfg := model.LLMConfig{
		Version:       model.ConfigVersion,
		ModelID:       "custom-model",
		Parameters:    model.InferenceParameters{Temperature: 0.3, MaxOutputTokens: &maxTokens, TopP: &topP},
		StopSequences: []string{"END"},
		System:        "You are terse.",
		RateLimit:     40000,
	}
	sess := &model.Session{
		ID:         "s-1",
		Title:      "Round trip",
		CreatedAt:  testEpoch,
		LastActive: testEpoch.Add(time.Minute),
		Config:     cfg,
		IsPrivate:  true,
	}
	require.NoError(t, store.Sessions.Create(ctx, sess))

	got, err := store.Sessions.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestSession_CreateDefaults(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	sess := &model.Session{ID: "s-2", Title: "Defaults", Config: model.DefaultConfig()}
	require.NoError(t, store.Sessions.Create(ctx, sess))
	assert.Equal(t, testEpoch, sess.CreatedAt)
	assert.Equal(t, testEpoch, sess.LastActive)
}

func TestSession_CreateErrors(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()
	sess := newTestSession(t, store, "Original", testEpoch)

	dup := *sess
	dup.Title = "Copy"
	assertKind(t, store.Sessions.Create(ctx, &dup), ErrDuplicateKey)

	assertKind(t, store.Sessions.Create(ctx, nil), ErrInvalidArgument)
	assertKind(t, store.Sessions.Create(ctx, &model.Session{Title: "no id"}), ErrInvalidArgument)
	assertKind(t, store.Sessions.Create(ctx, &model.Session{ID: "x", Title: "  "}), ErrInvalidArgument)
	assertKind(t, store.Sessions.Create(ctx, &model.Session{
		ID: "y", Title: "backwards", CreatedAt: testEpoch, LastActive: testEpoch.Add(-time.Second),
	}), ErrInvalidArgument)
}

func TestSession_GetNotFound(t *testing.T) {
	store, _ := openTestStore(t, false)
	_, err := store.Sessions.Get(context.Background(), "missing")
	assertKind(t, err, ErrNotFound)
}

func TestSession_Update(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()
	sess := newTestSession(t, store, "Before", testEpoch)

	sess.Title = "After"
	sess.LastActive = testEpoch.Add(time.Hour)
	sess.Config = model.PresetCreative.Config()
	sess.IsPrivate = true
	require.NoError(t, store.Sessions.Update(ctx, sess))

	got, err := store.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	// last_active never moves backwards.
	older := *got
	older.LastActive = testEpoch.Add(time.Minute)
	require.NoError(t, store.Sessions.Update(ctx, &older))
	got, err = store.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, testEpoch.Add(time.Hour), got.LastActive)

	missing := *sess
	missing.ID = "missing"
	assertKind(t, store.Sessions.Update(ctx, &missing), ErrNotFound)
}

func TestSession_Rename(t *testing.T) {
	store, clock := openTestStore(t, false)
	ctx := context.Background()
	sess := newTestSession(t, store, "Old", testEpoch)

	now := clock.Advance(2 * time.Hour)
	require.NoError(t, store.Sessions.Rename(ctx, sess.ID, "New"))

	got, err := store.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, now, got.LastActive)

	assertKind(t, store.Sessions.Rename(ctx, "missing", "x"), ErrNotFound)
	assertKind(t, store.Sessions.Rename(ctx, sess.ID, ""), ErrInvalidArgument)
}

func TestSession_SetPrivate(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()
	sess := newTestSession(t, store, "Secret", testEpoch)

	require.NoError(t, store.Sessions.SetPrivate(ctx, sess.ID, true))
	got, err := store.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrivate)
	assert.Equal(t, testEpoch, got.LastActive)

	assertKind(t, store.Sessions.SetPrivate(ctx, "missing", true), ErrNotFound)
}

func TestSession_Info(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()
	sess := newTestSession(t, store, "Info", testEpoch)

	info, err := store.Sessions.Info(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, info.MessageCount)
	assert.Nil(t, info.FirstMessageAt)
	assert.Nil(t, info.LastMessageAt)

	first := testEpoch.Add(time.Second)
	last := testEpoch.Add(time.Minute)
	appendText(t, store, sess, model.RoleUser, "q", first)
	appendText(t, store, sess, model.RoleAssistant, "a", last)

	info, err = store.Sessions.Info(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, info.MessageCount)
	require.NotNil(t, info.FirstMessageAt)
	require.NotNil(t, info.LastMessageAt)
	assert.Equal(t, first, *info.FirstMessageAt)
	assert.Equal(t, last, *info.LastMessageAt)

	_, err = store.Sessions.Info(ctx, "missing")
	assertKind(t, err, ErrNotFound)
}

// =============================================================================
// LISTING TESTS
// =============================================================================

func TestListRecent_OrderAndCounts(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "A", testEpoch)
	b := newTestSession(t, store, "B", testEpoch.Add(time.Minute))
	c := newTestSession(t, store, "C", testEpoch.Add(2*time.Minute))

	appendText(t, store, a, model.RoleUser, "bump a", testEpoch.Add(time.Hour))
	appendText(t, store, a, model.RoleAssistant, "reply", testEpoch.Add(time.Hour+time.Second))

	got, err := store.Sessions.ListRecent(ctx, 10, true)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 2, got[0].MessageCount)
	assert.Zero(t, got[1].MessageCount)

	got, err = store.Sessions.ListRecent(ctx, 2, true)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = store.Sessions.ListRecent(ctx, 0, true)
	assertKind(t, err, ErrInvalidArgument)
}

func TestListRecent_Privacy(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	public := newTestSession(t, store, "Public", testEpoch)
	private := model.NewSession("Private", model.DefaultConfig())
	private.CreatedAt = testEpoch.Add(time.Minute)
	private.LastActive = private.CreatedAt
	private.IsPrivate = true
	require.NoError(t, store.Sessions.Create(ctx, private))

	got, err := store.Sessions.ListRecent(ctx, 10, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, public.ID, got[0].ID)

	got, err = store.Sessions.ListRecent(ctx, 10, true)
	require.NoError(t, err)
	ids := []string{}
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, private.ID)
}

func TestListByDateRange(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	early := newTestSession(t, store, "Early", testEpoch)
	late := newTestSession(t, store, "Late", testEpoch)
	empty := newTestSession(t, store, "Empty", testEpoch)

	day := 24 * time.Hour
	appendText(t, store, early, model.RoleUser, "d1", testEpoch.Add(day))
	appendText(t, store, early, model.RoleUser, "d10", testEpoch.Add(10*day))
	appendText(t, store, late, model.RoleUser, "d3", testEpoch.Add(3*day))

	got, err := store.Sessions.ListByDateRange(ctx, testEpoch, testEpoch.Add(5*day))
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by most recent qualifying message, not overall activity.
	assert.Equal(t, late.ID, got[0].ID)
	assert.Equal(t, early.ID, got[1].ID)

	got, err = store.Sessions.ListByDateRange(ctx, testEpoch.Add(10*day), testEpoch.Add(10*day))
	require.NoError(t, err)
	require.Len(t, got, 1, "range bounds are inclusive")
	assert.Equal(t, early.ID, got[0].ID)

	for _, s := range got {
		assert.NotEqual(t, empty.ID, s.ID)
	}

	_, err = store.Sessions.ListByDateRange(ctx, testEpoch.Add(day), testEpoch)
	assertKind(t, err, ErrInvalidArgument)
}

func TestListByDateRange_FarBounds(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	sess := newTestSession(t, store, "Pi day", testEpoch)
	appendText(t, store, sess, model.RoleUser, "hello", testEpoch.Add(time.Hour))

	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	ancient := time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := store.Sessions.ListByDateRange(ctx, testEpoch, far)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sess.ID, got[0].ID)

	got, err = store.Sessions.ListByDateRange(ctx, ancient, far)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.Sessions.ListByDateRange(ctx, far, far.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSession_RejectsUnstorableTimes(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)

	sess := model.NewSession("Too late", model.DefaultConfig())
	sess.CreatedAt = far
	assertKind(t, store.Sessions.Create(ctx, sess), ErrInvalidArgument)

	sess = model.NewSession("Too early", model.DefaultConfig())
	sess.CreatedAt = time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	assertKind(t, store.Sessions.Create(ctx, sess), ErrInvalidArgument)

	ok := newTestSession(t, store, "Fine", testEpoch)
	ok.LastActive = far
	assertKind(t, store.Sessions.Update(ctx, ok), ErrInvalidArgument)

	msg := model.NewTextMessage(ok.ID, model.RoleUser, 0, "from the future")
	msg.CreatedAt = far
	assertKind(t, store.Messages.Append(ctx, msg), ErrInvalidArgument)

	n, err := store.Messages.Count(ctx, ok.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestSession_DeleteCascades(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	sess := newTestSession(t, store, "Doomed", testEpoch)
	keep := newTestSession(t, store, "Survivor", testEpoch)
	appendText(t, store, sess, model.RoleUser, "one", testEpoch.Add(time.Second))
	appendText(t, store, sess, model.RoleAssistant, "two", testEpoch.Add(2*time.Second))
	appendText(t, store, keep, model.RoleUser, "mine", testEpoch.Add(time.Second))

	require.NoError(t, store.Sessions.Delete(ctx, sess.ID))

	_, err := store.Sessions.Get(ctx, sess.ID)
	assertKind(t, err, ErrNotFound)

	msgs, err := store.Messages.ListOrdered(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = store.Messages.ListOrdered(ctx, keep.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	assertKind(t, store.Sessions.Delete(ctx, sess.ID), ErrNotFound)
}

func TestSession_DeleteWithoutMessages(t *testing.T) {
	store, _ := openTestStore(t, false)
	sess := newTestSession(t, store, "Empty", testEpoch)
	require.NoError(t, store.Sessions.Delete(context.Background(), sess.ID))
}

func TestSession_DeleteAll(t *testing.T) {
	store, _ := openTestStore(t, true)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		s := newTestSession(t, store, title, testEpoch)
		appendText(t, store, s, model.RoleUser, "x", testEpoch.Add(time.Second))
	}

	require.NoError(t, store.Sessions.DeleteAll(ctx))

	n, err := store.Sessions.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var msgs int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&msgs))
	assert.Zero(t, msgs)

	// Templates are not sessions.
	n, err = store.Templates.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
