// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
//
// Everything lives in one SQLite file opened through modernc.org/sqlite.
// The schema is versioned with golang-migrate and embedded in the binary.
//
// # Key Types
//
//   - Store: owns the database and hands out the component stores
//   - SessionStore: session metadata, recency and date-range listing
//   - MessageStore: ordered messages with contiguous indices
//   - TemplateStore: named configurations with a single default
//   - SearchEngine: multi-term search over titles and content
//   - Error: the error returned by every operation, see ErrNotFound etc.
//
// # Usage
//
//	store, err := storage.Open(ctx, storage.DefaultOptions(path))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	sess := model.NewSession("Trip Planning", model.DefaultConfig())
//	err = store.Sessions.Create(ctx, sess)
//	err = store.Messages.Append(ctx, model.NewTextMessage(sess.ID, model.RoleUser, 0, "Let's visit Paris"))
//
//	hits, err := store.Search.Find(ctx, storage.SearchQuery{
//	    Terms: []string{"paris"}, Titles: true, Content: true,
//	})
//
// # Guarantees
//
// Every mutating call commits fully or not at all. Message indices in a
// session are always 0..n-1, and at most one template is the default.
package storage
