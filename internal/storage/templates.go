// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/chatvault/internal/model"
)

// =============================================================================
// TEMPLATE STORE
// =============================================================================

// TemplateStore persists named configuration templates. At most one template
// is the default; SetDefault is the only way to change which one.
type TemplateStore struct {
	s *Store
}

const templateColumns = `template_id, name, description, config_json, is_default`

// Store inserts a new template with is_default cleared. An empty ID is
// filled with a fresh one.
func (ts *TemplateStore) Store(ctx context.Context, t *model.ChatTemplate) error {
	const op = "templates.Store"

	if err := validateTemplate(op, t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = model.NewID()
	}
	cfg, err := t.Config.MarshalBlob()
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	}

	err = ts.s.withTx(ctx, op, func(tx *sql.Tx) error {
		return insertTemplate(ctx, tx, op, t, cfg)
	})
	if err != nil {
		return err
	}
	t.IsDefault = false
	return nil
}

// Update replaces name, description and config of the template with t.ID.
// The default flag is left alone.
func (ts *TemplateStore) Update(ctx context.Context, t *model.ChatTemplate) error {
	const op = "templates.Update"

	if err := validateTemplate(op, t); err != nil {
		return err
	}
	if strings.TrimSpace(t.ID) == "" {
		return invalidArg(op, "template id is required")
	}
	cfg, err := t.Config.MarshalBlob()
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	}

	return ts.s.withTx(ctx, op, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE templates SET name = ?, description = ?, config_json = ?
			WHERE template_id = ?
		`, t.Name, t.Description, string(cfg), t.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return &Error{Op: op, Kind: ErrDuplicateName, Msg: "template " + t.Name, Err: err}
			}
			return err
		}
		return requireAffected(res, notFound(op, "template %q", t.ID))
	})
}

// GetByID returns the template with the given ID.
func (ts *TemplateStore) GetByID(ctx context.Context, id string) (*model.ChatTemplate, error) {
	const op = "templates.GetByID"

	if strings.TrimSpace(id) == "" {
		return nil, invalidArg(op, "template id is required")
	}
	return ts.getOne(ctx, op, `WHERE template_id = ?`, id)
}

// GetByName returns the template with the given name. Names are matched
// exactly.
func (ts *TemplateStore) GetByName(ctx context.Context, name string) (*model.ChatTemplate, error) {
	const op = "templates.GetByName"

	if strings.TrimSpace(name) == "" {
		return nil, invalidArg(op, "template name is required")
	}
	return ts.getOne(ctx, op, `WHERE name = ?`, name)
}

// GetDefault returns the default template, or ErrNoDefaultConfigured.
func (ts *TemplateStore) GetDefault(ctx context.Context) (*model.ChatTemplate, error) {
	const op = "templates.GetDefault"

	t, err := ts.getOne(ctx, op, `WHERE is_default = 1`)
	if errors.Is(err, ErrNotFound) {
		return nil, errorf(op, ErrNoDefaultConfigured, "no template is marked default")
	}
	return t, err
}

// ListAll returns every template ordered by name.
func (ts *TemplateStore) ListAll(ctx context.Context) ([]model.ChatTemplate, error) {
	const op = "templates.ListAll"

	out, err := listTemplates(ctx, ts.s.db)
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

// Delete removes the template. Deleting the default leaves the store with
// no default until SetDefault is called again.
func (ts *TemplateStore) Delete(ctx context.Context, id string) error {
	const op = "templates.Delete"

	if strings.TrimSpace(id) == "" {
		return invalidArg(op, "template id is required")
	}

	var wasDefault bool
	err := ts.s.withTx(ctx, op, func(tx *sql.Tx) error {
		var flag int
		err := tx.QueryRowContext(ctx,
			`SELECT is_default FROM templates WHERE template_id = ?`, id).Scan(&flag)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(op, "template %q", id)
		}
		if err != nil {
			return err
		}
		wasDefault = flag != 0

		_, err = tx.ExecContext(ctx, `DELETE FROM templates WHERE template_id = ?`, id)
		return err
	})
	if err != nil {
		return err
	}

	if wasDefault {
		ts.s.log.Warn("default template deleted; no default configured", "template_id", id)
	}
	return nil
}

// SetDefault makes id the only default template. The clear and the set run
// in one transaction.
func (ts *TemplateStore) SetDefault(ctx context.Context, id string) error {
	const op = "templates.SetDefault"

	if strings.TrimSpace(id) == "" {
		return invalidArg(op, "template id is required")
	}

	return ts.s.withTx(ctx, op, func(tx *sql.Tx) error {
		return setDefault(ctx, tx, op, id)
	})
}

// Count returns the number of stored templates.
func (ts *TemplateStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ts.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&n); err != nil {
		return 0, classify("templates.Count", err)
	}
	return n, nil
}

// =============================================================================
// EXPORT / IMPORT
// =============================================================================

// Format selects the encoding for template export and import.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// ParseFormat accepts "json" or "toml" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatTOML:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or toml)", s)
}

// ImportResult reports what Import did with each template name.
type ImportResult struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped"`
}

// Export writes every template to w. The default flag is included so the
// file documents it, but Import never applies it.
func (ts *TemplateStore) Export(ctx context.Context, w io.Writer, format Format) error {
	const op = "templates.Export"

	templates, err := ts.ListAll(ctx)
	if err != nil {
		return err
	}
	bundle := model.TemplateExport{Templates: templates, ExportedAt: ts.s.now()}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(bundle)
	case FormatTOML:
		err = toml.NewEncoder(w).Encode(bundle)
	default:
		return invalidArg(op, "unknown format %q", format)
	}
	if err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Msg: "encode templates", Err: err}
	}
	return nil
}

// Import reads templates from r and stores those whose names are not taken.
// Templates arrive with is_default cleared; an ID that is already in use is
// replaced with a fresh one. All inserts share one transaction.
func (ts *TemplateStore) Import(ctx context.Context, r io.Reader, format Format) (*ImportResult, error) {
	const op = "templates.Import"

	var bundle model.TemplateExport
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&bundle)
	case FormatTOML:
		_, err = toml.NewDecoder(r).Decode(&bundle)
	default:
		return nil, invalidArg(op, "unknown format %q", format)
	}
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrInvalidArgument, Msg: "decode templates", Err: err}
	}

	for i := range bundle.Templates {
		if err := validateTemplate(op, &bundle.Templates[i]); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{Imported: []string{}, Skipped: []string{}}
	err = ts.s.withTx(ctx, op, func(tx *sql.Tx) error {
		for i := range bundle.Templates {
			t := bundle.Templates[i]

			taken, err := rowExists(ctx, tx, `SELECT 1 FROM templates WHERE name = ?`, t.Name)
			if err != nil {
				return err
			}
			if taken {
				result.Skipped = append(result.Skipped, t.Name)
				continue
			}
			if t.ID == "" {
				t.ID = model.NewID()
			} else if idTaken, err := rowExists(ctx, tx, `SELECT 1 FROM templates WHERE template_id = ?`, t.ID); err != nil {
				return err
			} else if idTaken {
				t.ID = model.NewID()
			}

			cfg, err := t.Config.MarshalBlob()
			if err != nil {
				return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
			}
			if err := insertTemplate(ctx, tx, op, &t, cfg); err != nil {
				return err
			}
			result.Imported = append(result.Imported, t.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ts.s.log.Info("templates imported", "imported", len(result.Imported), "skipped", len(result.Skipped))
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func validateTemplate(op string, t *model.ChatTemplate) error {
	if t == nil {
		return invalidArg(op, "template is nil")
	}
	if strings.TrimSpace(t.Name) == "" {
		return invalidArg(op, "template name is required")
	}
	if err := t.Config.Validate(); err != nil {
		return &Error{Op: op, Kind: ErrInvalidArgument, Msg: "template " + t.Name, Err: err}
	}
	return nil
}

func insertTemplate(ctx context.Context, tx *sql.Tx, op string, t *model.ChatTemplate, cfg []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO templates (template_id, name, description, config_json, is_default)
		VALUES (?, ?, ?, ?, 0)
	`, t.ID, t.Name, t.Description, string(cfg))
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		if strings.HasSuffix(constraintColumn(err), ".name") {
			return &Error{Op: op, Kind: ErrDuplicateName, Msg: "template " + t.Name, Err: err}
		}
		return &Error{Op: op, Kind: ErrDuplicateKey, Msg: "template " + t.ID, Err: err}
	}
	return err
}

func setDefault(ctx context.Context, tx *sql.Tx, op, id string) error {
	exists, err := rowExists(ctx, tx, `SELECT 1 FROM templates WHERE template_id = ?`, id)
	if err != nil {
		return err
	}
	if !exists {
		return notFound(op, "template %q", id)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE templates SET is_default = 0 WHERE is_default = 1`); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE templates SET is_default = 1 WHERE template_id = ?`, id)
	return err
}

func (ts *TemplateStore) getOne(ctx context.Context, op, where string, args ...any) (*model.ChatTemplate, error) {
	row := ts.s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates `+where, args...)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(op, "template matching %v", args)
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return t, nil
}

func listTemplates(ctx context.Context, q execer) ([]model.ChatTemplate, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ChatTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(row rowScanner) (*model.ChatTemplate, error) {
	var (
		t     model.ChatTemplate
		cfg   string
		isDef int
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &cfg, &isDef); err != nil {
		return nil, err
	}
	c, err := model.UnmarshalConfigBlob([]byte(cfg))
	if err != nil {
		return nil, err
	}
	t.Config = c
	t.IsDefault = isDef != 0
	return &t, nil
}

func rowExists(ctx context.Context, q execer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
