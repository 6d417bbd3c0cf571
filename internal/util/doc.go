// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides helpers shared by the chatvault packages.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadRight: display-width aware layout for tables
//
// Time:
//   - RecencyBucket: groups timestamps into Today, Yesterday, ... Older
//
// File Operations:
//   - AtomicWriteFile, AtomicWrite: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.PadRight(sess.Title, 40)
//	group := util.RecencyBucket(sess.LastActive, time.Now())
//	err := util.AtomicWriteFile(path, data, 0600)
package util
