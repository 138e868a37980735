// Package pgstore serves backend queries from PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/listing-search/internal/backend"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool *pgxpool.Pool
}

var _ backend.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgstore: pool cannot be nil")
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the listing tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert writes rows into table, replacing rows with the same key.
func (s *Store) Insert(ctx context.Context, table string, rows ...backend.Row) error {
	cols, ok := backend.Schema[table]
	if !ok {
		return fmt.Errorf("insert into %q: %w", table, backend.ErrUnknownTable)
	}
	sql := insertSQL(table, cols)
	batch := &pgx.Batch{}
	for _, r := range rows {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = r[c]
		}
		batch.Queue(sql, args...)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (s *Store) Select(ctx context.Context, q backend.Query) (backend.Result, error) {
	if err := q.Validate(); err != nil {
		return backend.Result{}, fmt.Errorf("pgstore select %s: %w", q.Table, err)
	}
	sel, args := buildSelect(q)

	rows, err := s.pool.Query(ctx, sel, args...)
	if err != nil {
		return backend.Result{}, fmt.Errorf("select %s: %w", q.Table, err)
	}
	defer rows.Close()

	cols := columns(q)
	var out backend.Result
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return backend.Result{}, fmt.Errorf("scan %s: %w", q.Table, err)
		}
		r := make(backend.Row, len(cols))
		for i, c := range cols {
			r[c] = normalize(vals[i])
		}
		out.Rows = append(out.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return backend.Result{}, fmt.Errorf("select %s: %w", q.Table, err)
	}

	if q.Count {
		cnt, cargs := buildCount(q)
		var total int64
		if err := s.pool.QueryRow(ctx, cnt, cargs...).Scan(&total); err != nil {
			return backend.Result{}, fmt.Errorf("count %s: %w", q.Table, err)
		}
		out.Total = int(total)
	}
	return out, nil
}

// normalize maps driver types onto the ones Row accessors and the JSON cache expect.
func normalize(v any) any {
	switch n := v.(type) {
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func columns(q backend.Query) []string {
	if len(q.Columns) == 0 {
		return backend.Schema[q.Table]
	}
	return q.Columns
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) cond(c backend.Condition) string {
	f := quote(c.Field)
	switch c.Op {
	case backend.OpEq:
		return f + " = " + b.arg(c.Value)
	case backend.OpILike:
		return f + " ILIKE " + b.arg(c.Value)
	case backend.OpIn:
		ids, _ := c.Value.([]string)
		if len(ids) == 0 {
			return "FALSE"
		}
		return f + " = ANY(" + b.arg(ids) + ")"
	case backend.OpGte:
		return f + " >= " + b.arg(c.Value)
	case backend.OpLte:
		return f + " <= " + b.arg(c.Value)
	}
	return "FALSE"
}

func (b *builder) where(q backend.Query) string {
	var parts []string
	for _, c := range q.Where {
		parts = append(parts, b.cond(c))
	}
	if len(q.AnyOf) > 0 {
		alts := make([]string, len(q.AnyOf))
		for i, c := range q.AnyOf {
			alts[i] = b.cond(c)
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}
	if len(parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func buildSelect(q backend.Query) (string, []any) {
	cols := columns(q)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}

	b := &builder{}
	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(quoted, ", ") + " FROM " + quote(q.Table))
	sb.WriteString(b.where(q))
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY " + quote(q.OrderBy))
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + b.arg(q.Offset))
	}
	return sb.String(), b.args
}

func buildCount(q backend.Query) (string, []any) {
	b := &builder{}
	return "SELECT count(*) FROM " + quote(q.Table) + b.where(q), b.args
}

func insertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	ph := make([]string, len(cols))
	sets := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		quoted[i] = quote(c)
		ph[i] = fmt.Sprintf("$%d", i+1)
		if i > 0 {
			sets = append(sets, quoted[i]+" = EXCLUDED."+quoted[i])
		}
	}
	return "INSERT INTO " + quote(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
		strings.Join(ph, ", ") + ") ON CONFLICT (" + quoted[0] + ") DO UPDATE SET " + strings.Join(sets, ", ")
}
