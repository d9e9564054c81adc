package db

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Placeholder renders the bind parameter for the 1-based argument position n.
type Placeholder func(n int) string

// Dollar renders Postgres-style placeholders ($1, $2, ...).
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders SQLite-style positional placeholders.
func Question(int) string { return "?" }

// UpsertConfig defines the parameters for a single-row conditional upsert.
type UpsertConfig struct {
	Table        string            // target table (e.g., "events")
	Columns      []string          // all columns being inserted, in argument order
	ConflictKeys []string          // columns forming the unique constraint
	UpdateCols   []string          // columns to update on conflict; nil = all non-conflict columns
	GuardColumn  string            // update only when EXCLUDED.guard > table.guard; "" = unconditional
	ValueExprs   map[string]string // optional per-column value expression wrapping the placeholder, e.g. "ST_GeomFromEWKB(%s)"
	Touch        []string          // raw SET clauses appended on update (e.g., "updated_at = now()")
	Placeholder  Placeholder       // nil = Dollar
}

// UpsertSQL builds INSERT ... VALUES ... ON CONFLICT (keys) DO UPDATE SET ...
// [WHERE EXCLUDED.guard > table.guard]. With a guard column the statement
// affects zero rows when the stored row is as fresh or fresher, which callers
// use to distinguish applied from skipped writes.
func UpsertSQL(cfg UpsertConfig) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: upsert: no conflict keys specified")
	}

	ph := cfg.Placeholder
	if ph == nil {
		ph = Dollar
	}

	updateCols := cfg.UpdateCols
	if updateCols == nil {
		conflictSet := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			conflictSet[k] = true
		}
		for _, c := range cfg.Columns {
			if !conflictSet[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	values := make([]string, len(cfg.Columns))
	for i, col := range cfg.Columns {
		p := ph(i + 1)
		if expr, ok := cfg.ValueExprs[col]; ok {
			p = fmt.Sprintf(expr, p)
		}
		values[i] = p
	}

	setClauses := make([]string, 0, len(updateCols)+len(cfg.Touch))
	for _, col := range updateCols {
		id := pgx.Identifier{col}.Sanitize()
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	setClauses = append(setClauses, cfg.Touch...)
	if len(setClauses) == 0 {
		return "", eris.New("db: upsert: nothing to update")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(values, ", "),
		quoteAndJoin(cfg.ConflictKeys),
		strings.Join(setClauses, ", "),
	)

	if cfg.GuardColumn != "" {
		guard := pgx.Identifier{cfg.GuardColumn}.Sanitize()
		fmt.Fprintf(&sb, " WHERE EXCLUDED.%s > %s.%s", guard, sanitizeTable(cfg.Table), guard)
	}

	return sb.String(), nil
}

// sanitizeTable handles schema-qualified table names like "public.events".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
