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

func ids(sums []model.SessionSummary) []string {
	out := []string{}
	for _, s := range sums {
		out = append(out, s.ID)
	}
	return out
}

// =============================================================================
// FIND TESTS
// =============================================================================

func TestFind_TripPlanning(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "Trip Planning", testEpoch)
	appendText(t, store, a, model.RoleUser, "Let's visit Paris", testEpoch.Add(time.Second))

	find := func(op Operator, terms ...string) []string {
		t.Helper()
		got, err := store.Search.Find(ctx, SearchQuery{Terms: terms, Operator: op, Titles: true, Content: true})
		require.NoError(t, err)
		return ids(got)
	}

	assert.Equal(t, []string{a.ID}, find(OpAnd, "paris"))
	assert.Empty(t, find(OpAnd, "paris", "tokyo"))
	assert.Equal(t, []string{a.ID}, find(OpOr, "paris", "tokyo"))
}

func TestFind_AndSpansTitleAndMessages(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "Trip Planning", testEpoch)
	appendText(t, store, a, model.RoleUser, "Paris first", testEpoch.Add(time.Second))
	appendText(t, store, a, model.RoleAssistant, "then Lyon", testEpoch.Add(2*time.Second))

	got, err := store.Search.Find(ctx, SearchQuery{
		Terms: []string{"trip", "paris", "lyon"}, Operator: OpAnd, Titles: true, Content: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(got))
}

func TestFind_FieldSelection(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "Paris notes", testEpoch)
	appendText(t, store, a, model.RoleUser, "nothing relevant", testEpoch.Add(time.Second))
	b := newTestSession(t, store, "Misc", testEpoch.Add(time.Minute))
	appendText(t, store, b, model.RoleUser, "paris again", testEpoch.Add(time.Hour))

	titles, err := store.Search.Find(ctx, SearchQuery{Terms: []string{"PARIS"}, Titles: true})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(titles))

	content, err := store.Search.Find(ctx, SearchQuery{Terms: []string{"PARIS"}, Content: true})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(content))

	both, err := store.Search.Find(ctx, SearchQuery{Terms: []string{"paris"}, Titles: true, Content: true})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, ids(both), "most recently active first")

	_, err = store.Search.Find(ctx, SearchQuery{Terms: []string{"paris"}})
	assertKind(t, err, ErrInvalidArgument)
}

func TestFind_Wildcards(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "Chat", testEpoch)
	appendText(t, store, a, model.RoleUser, "I like database indexes", testEpoch.Add(time.Second))
	b := newTestSession(t, store, "Other", testEpoch)
	appendText(t, store, b, model.RoleUser, "100% sure_thing", testEpoch.Add(time.Second))

	tests := []struct {
		term string
		want []string
	}{
		{"data*index", []string{a.ID}},
		{"like*zebra", nil},
		{"100%", []string{b.ID}},
		{"sure_thing", []string{b.ID}},
		{"sure%thing", nil},
		{"i_e", nil},
	}
	for _, tc := range tests {
		t.Run(tc.term, func(t *testing.T) {
			got, err := store.Search.Find(ctx, SearchQuery{Terms: []string{tc.term}, Content: true})
			require.NoError(t, err)
			if tc.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tc.want, ids(got))
			}
		})
	}
}

func TestFind_UnicodeCaseFolding(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "ÉTÉ à Zürich", testEpoch)

	got, err := store.Search.Find(ctx, SearchQuery{Terms: []string{"été", "ZÜRICH"}, Titles: true})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(got))
}

func TestFind_SearchesThinkingAndDocumentNames(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	a := newTestSession(t, store, "Docs", testEpoch)
	msg := model.NewMessage(a.ID, model.RoleAssistant, 0,
		model.ThinkingItem("consider the quarterly numbers", ""),
		model.DocumentItem("budget-2025.xlsx", "xlsx", []byte("cells")),
	)
	msg.CreatedAt = testEpoch.Add(time.Second)
	require.NoError(t, store.Messages.Append(ctx, msg))

	for _, term := range []string{"quarterly", "budget-2025"} {
		got, err := store.Search.Find(ctx, SearchQuery{Terms: []string{term}, Content: true})
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID}, ids(got), term)
	}

	got, err := store.Search.Find(ctx, SearchQuery{Terms: []string{"cells"}, Content: true})
	require.NoError(t, err)
	assert.Empty(t, got, "document payloads are not indexed")
}

func TestFind_DateRangeAndPrivacy(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()
	day := 24 * time.Hour

	old := newTestSession(t, store, "Old paris", testEpoch)
	appendText(t, store, old, model.RoleUser, "hello", testEpoch.Add(day))
	recent := newTestSession(t, store, "Recent paris", testEpoch)
	appendText(t, store, recent, model.RoleUser, "hello", testEpoch.Add(20*day))
	require.NoError(t, store.Sessions.SetPrivate(ctx, recent.ID, true))

	q := SearchQuery{
		Terms:     []string{"paris"},
		Titles:    true,
		DateRange: &DateRange{Start: testEpoch.Add(10 * day), End: testEpoch.Add(30 * day)},
	}
	got, err := store.Search.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{recent.ID}, ids(got))

	q.ExcludePrivate = true
	got, err = store.Search.Find(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, got)

	q.DateRange = &DateRange{Start: testEpoch.Add(day), End: testEpoch}
	_, err = store.Search.Find(ctx, q)
	assertKind(t, err, ErrInvalidArgument)
}

func TestFind_DateRangeFarBounds(t *testing.T) {
	store, _ := openTestStore(t, false)
	ctx := context.Background()

	sess := newTestSession(t, store, "Lisbon trip", testEpoch)
	appendText(t, store, sess, model.RoleUser, "hello", testEpoch.Add(time.Hour))

	q := SearchQuery{
		Terms:     []string{"lisbon"},
		Titles:    true,
		DateRange: &DateRange{Start: testEpoch, End: time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	got, err := store.Search.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{sess.ID}, ids(got))

	q.DateRange.Start = time.Date(1066, 10, 14, 0, 0, 0, 0, time.UTC)
	got, err = store.Search.Find(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{sess.ID}, ids(got))
}

func TestFind_NoTerms(t *testing.T) {
	store, _ := openTestStore(t, false)
	newTestSession(t, store, "Anything", testEpoch)

	for _, terms := range [][]string{nil, {}, {"  ", "*"}} {
		got, err := store.Search.Find(context.Background(), SearchQuery{Terms: terms, Titles: true, Content: true})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestFind_Limit(t *testing.T) {
	store, _ := openTestStore(t, false)
	for i := 0; i < 4; i++ {
		newTestSession(t, store, "match", testEpoch.Add(time.Duration(i)*time.Minute))
	}
	got, err := store.Search.Find(context.Background(), SearchQuery{Terms: []string{"match"}, Titles: true, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// =============================================================================
// MATCHING HELPER TESTS
// =============================================================================

func TestMatchingMessages(t *testing.T) {
	msgs := []model.Message{
		*model.NewTextMessage("s", model.RoleUser, 0, "Let's visit Paris"),
		*model.NewTextMessage("s", model.RoleAssistant, 1, "Sure, when?"),
		*model.NewTextMessage("s", model.RoleUser, 2, "Tokyo in spring"),
	}

	got := MatchingMessages(msgs, []string{"PARIS", "tokyo"})
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 2, got[1].Index)

	got = MatchingMessages(msgs, []string{"vis*par"})
	require.Len(t, got, 1)

	assert.Empty(t, MatchingMessages(msgs, nil))
}

func TestMatchingMessages_NilPayloads(t *testing.T) {
	msgs := []model.Message{
		{SessionID: "s", Role: model.RoleAssistant, Index: 0, Content: model.Content{
			{Type: model.ContentThinking},
			{Type: model.ContentDocument},
		}},
		*model.NewTextMessage("s", model.RoleUser, 1, "Paris again"),
	}

	var got []model.Message
	require.NotPanics(t, func() { got = MatchingMessages(msgs, []string{"paris"}) })
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Index)
}

func TestTitleMatches(t *testing.T) {
	assert.True(t, TitleMatches("Trip Planning", []string{"TRIP"}))
	assert.True(t, TitleMatches("Trip Planning", []string{"tr*ning"}))
	assert.False(t, TitleMatches("Trip Planning", []string{"plan*trip"}))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%a\%b\_c%d\\%`, likePattern(`a%b_c*d\`))
}
