package table

import (
	"context"
	"encoding/json"
	"time"

	"github.com/embedkit/embedkit/errs"
	"github.com/embedkit/embedkit/predicate"
	"github.com/embedkit/embedkit/schema"
)

// ExportDoc is the shape written by ExportToJson, per spec.md §4.4.
type ExportDoc struct {
	Table    string       `json:"table"`
	Exported string       `json:"exported"`
	Count    int          `json:"count"`
	Data     []schema.Row `json:"data"`
}

// ExportOptions configures ExportToJson.
type ExportOptions struct {
	Where  predicate.Predicate
	Select []string
	Pretty bool
}

// ExportToJson selects rows and marshals them into an ExportDoc.
func (t *Table) ExportToJson(ctx context.Context, opts ExportOptions) (string, error) {
	rows, err := t.Select(ctx, SelectOptions{Where: opts.Where, Select: opts.Select})
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		for k, v := range row {
			if ts, ok := v.(time.Time); ok {
				row[k] = ts.UnixMilli()
			}
		}
	}

	doc := ExportDoc{
		Table:    t.schema.Name,
		Exported: nowISO8601(),
		Count:    len(rows),
		Data:     rows,
	}

	var b []byte
	if opts.Pretty {
		b, err = json.MarshalIndent(doc, "", "  ")
	} else {
		b, err = json.Marshal(doc)
	}
	if err != nil {
		return "", errs.Wrap(errs.Unexpected, "marshal export", err)
	}
	return string(b), nil
}

// nowISO8601 is a seam so tests can substitute a deterministic time if
// needed; production callers get the real wall clock.
var nowISO8601 = func() string {
	return timeNowUTC().Format(time.RFC3339)
}

var timeNowUTC = func() time.Time { return timeNow().UTC() }
var timeNow = time.Now

// ConflictResolution selects how ImportFromJson/SyncWith handle rows that
// already exist.
type ConflictResolution string

const (
	ConflictReplace ConflictResolution = "replace"
	ConflictIgnore  ConflictResolution = "ignore"
	ConflictFail    ConflictResolution = "fail"
	ConflictUpdate  ConflictResolution = "update" // SyncWith-only: overwrite non-null fields
)

// ImportOptions configures ImportFromJson.
type ImportOptions struct {
	ConflictResolution ConflictResolution
	BatchSize          int
	ValidateSchema     bool
}

// ImportResult reports ImportFromJson's outcome, per spec.md §4.4.
type ImportResult struct {
	Imported int
	Skipped  int
	Errors   []string
}

// ImportFromJson parses a JSON document (either an ExportDoc or a bare
// array of rows) and loads it, batching per opts.BatchSize (default 1000).
func (t *Table) ImportFromJson(ctx context.Context, doc string, opts ImportOptions) (ImportResult, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.ConflictResolution == "" {
		opts.ConflictResolution = ConflictReplace
	}

	rows, err := parseImportDoc(doc)
	if err != nil {
		return ImportResult{}, errs.Wrap(errs.InvalidArgument, "parse import document", err)
	}

	result := ImportResult{}
	valid := rows[:0:0]
	if opts.ValidateSchema {
		for _, row := range rows {
			if verr := schema.ValidateInsertRow(t.schema, row); verr != nil {
				if opts.ConflictResolution == ConflictFail {
					return ImportResult{}, errs.Wrap(errs.InvalidArgument, "import row validation", verr)
				}
				result.Skipped++
				result.Errors = append(result.Errors, verr.Error())
				continue
			}
			valid = append(valid, row)
		}
	} else {
		valid = rows
	}

	primary := t.schema.PrimaryColumns()

	for start := 0; start < len(valid); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]

		for _, row := range batch {
			var opErr error
			switch opts.ConflictResolution {
			case ConflictReplace:
				if len(primary) > 0 {
					conflictCols := make([]string, len(primary))
					for i, c := range primary {
						conflictCols[i] = c.Name
					}
					opErr = t.Upsert(ctx, []schema.Row{row}, UpsertOptions{ConflictColumns: conflictCols})
				} else {
					opErr = t.Insert(ctx, []schema.Row{row})
				}
			case ConflictFail:
				opErr = t.Insert(ctx, []schema.Row{row})
				if opErr != nil {
					return result, opErr
				}
			default: // ConflictIgnore
				opErr = t.Insert(ctx, []schema.Row{row})
			}

			if opErr != nil {
				result.Skipped++
				result.Errors = append(result.Errors, opErr.Error())
				continue
			}
			result.Imported++
		}
	}
	return result, nil
}

func parseImportDoc(doc string) ([]schema.Row, error) {
	var envelope ExportDoc
	if err := json.Unmarshal([]byte(doc), &envelope); err == nil && envelope.Data != nil {
		return envelope.Data, nil
	}
	var rows []schema.Row
	if err := json.Unmarshal([]byte(doc), &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SyncResult reports SyncWith's outcome, per spec.md §4.4.
type SyncResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// SyncOptions configures SyncWith.
type SyncOptions struct {
	KeyColumn          string
	ConflictResolution ConflictResolution // replace (default), update, or ignore
	BatchSize          int
	OnProgress         func(done, total int)
}

// SyncWith copies rows from source into t, matching by opts.KeyColumn and
// applying opts.ConflictResolution to rows that already exist, per spec.md
// §4.4.
func (t *Table) SyncWith(ctx context.Context, source []schema.Row, opts SyncOptions) (SyncResult, error) {
	if opts.KeyColumn == "" {
		return SyncResult{}, errs.New(errs.InvalidArgument, "syncWith requires keyColumn")
	}
	if opts.ConflictResolution == "" {
		opts.ConflictResolution = ConflictReplace
	}

	result := SyncResult{}
	for i, row := range source {
		keyVal, hasKey := row[opts.KeyColumn]
		if !hasKey {
			result.Skipped++
			continue
		}
		existing, err := t.FindFirst(ctx, predicate.Predicate{Equality: map[string]any{opts.KeyColumn: keyVal}}, nil)
		if err != nil {
			return result, err
		}
		if existing == nil {
			if err := t.Insert(ctx, []schema.Row{row}); err != nil {
				return result, err
			}
			result.Inserted++
		} else {
			switch opts.ConflictResolution {
			case ConflictIgnore:
				result.Skipped++
			case ConflictUpdate:
				patch := nonNullFields(row, opts.KeyColumn)
				if len(patch) == 0 {
					result.Skipped++
				} else if err := t.Update(ctx, predicate.Predicate{Equality: map[string]any{opts.KeyColumn: keyVal}}, patch); err != nil {
					return result, err
				} else {
					result.Updated++
				}
			default: // replace
				values := make(schema.Row, len(row))
				for k, v := range row {
					if k == opts.KeyColumn {
						continue
					}
					values[k] = v
				}
				if err := t.Update(ctx, predicate.Predicate{Equality: map[string]any{opts.KeyColumn: keyVal}}, values); err != nil {
					return result, err
				}
				result.Updated++
			}
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(source))
		}
	}
	return result, nil
}

func nonNullFields(row schema.Row, excludeKey string) schema.Row {
	out := schema.Row{}
	for k, v := range row {
		if k == excludeKey || v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
