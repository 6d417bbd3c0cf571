// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives a single active chat session on top of the store.
//
// The Manager is what a front-end talks to: it starts sessions from the
// default template, appends turns with monotonic timestamps and implements
// editing as truncate-then-append, so stored messages are never modified.
//
// # Usage
//
//	mgr := session.NewManager(store, session.Options{})
//	sess, err := mgr.Start(ctx, "", nil)
//	_, err = mgr.AppendTurn(ctx, model.RoleUser, model.TextItem("Hello"))
//	_, err = mgr.EditTurn(ctx, 0, model.TextItem("Hello again"))
package session
