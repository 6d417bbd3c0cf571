// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jeranaias/chatvault/internal/model"
)

const metaPresetsSeeded = "presets_seeded"

// seedPresets stores the built-in presets on a fresh database and marks the
// first one default. It runs at most once per database: the metadata flag is
// set even if the user later deletes every template.
func (s *Store) seedPresets(ctx context.Context) error {
	const op = "storage.seedPresets"

	var seeded []string
	err := s.withTx(ctx, op, func(tx *sql.Tx) error {
		var flag string
		err := tx.QueryRowContext(ctx,
			`SELECT value FROM metadata WHERE key = ?`, metaPresetsSeeded).Scan(&flag)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if flag == "1" {
			return nil
		}

		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			for i, p := range model.Presets() {
				t := model.NewTemplate(string(p), p.Description(), p.Config())
				cfg, err := t.Config.MarshalBlob()
				if err != nil {
					return err
				}
				if err := insertTemplate(ctx, tx, op, t, cfg); err != nil {
					return err
				}
				if i == 0 {
					if err := setDefault(ctx, tx, op, t.ID); err != nil {
						return err
					}
				}
				seeded = append(seeded, t.Name)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO metadata (key, value) VALUES (?, '1')
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, metaPresetsSeeded)
		return err
	})
	if err != nil {
		return err
	}

	if len(seeded) > 0 {
		s.log.Info("seeded preset templates", "templates", seeded, "default", seeded[0])
	}
	return nil
}
