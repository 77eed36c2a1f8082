package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"clinic-appointments/internal/ports/documents"

	"github.com/jackc/pgx/v5/pgconn"
)

// código SQLSTATE de unique_violation
const uniqueViolation = "23505"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	rev        TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, key)
)`

var identRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// Store guarda todas las colecciones en una sola tabla JSONB.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate crea la tabla si no existe.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Collection(ctx context.Context, spec documents.CollectionSpec) (documents.Collection, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("postgres: collection name required")
	}

	for _, idx := range spec.Unique {
		if err := s.ensureUniqueIndex(ctx, name, idx); err != nil {
			return nil, fmt.Errorf("postgres: index %s on %s: %w", idx.Name, name, err)
		}
	}

	return &collection{
		name: name,
		edge: spec.Edge,
		db:   s.db,
		now:  s.now,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Los índices únicos son índices parciales por colección sobre expresiones JSONB.
// Un documento sin el campo queda con NULL y no participa del índice.
func (s *Store) ensureUniqueIndex(ctx context.Context, collection string, idx documents.Index) error {
	if len(idx.Fields) == 0 {
		return errors.New("index without fields")
	}

	exprs := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		exprs = append(exprs, fmt.Sprintf("(body->>%s)", quoteLiteral(f)))
	}

	indexName := fmt.Sprintf("documents_%s_%s_uniq",
		strings.ToLower(identRe.ReplaceAllString(collection, "_")),
		strings.ToLower(identRe.ReplaceAllString(idx.Name, "_")),
	)

	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON documents (%s) WHERE collection = %s",
		indexName,
		strings.Join(exprs, ", "),
		quoteLiteral(collection),
	)
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type collection struct {
	name string
	edge bool
	db   *sql.DB
	now  func() time.Time
}

func (c *collection) Name() string { return c.name }

func (c *collection) All(ctx context.Context) ([]documents.Document, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT key, rev, body
		FROM documents
		WHERE collection = $1
		ORDER BY key ASC
	`, c.name)
	if err != nil {
		return nil, err
	}
	return c.scanAll(rows)
}

func (c *collection) Document(ctx context.Context, key string) (documents.Document, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT key, rev, body
		FROM documents
		WHERE collection = $1 AND key = $2
	`, c.name, key)

	d, err := c.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
		}
		return nil, err
	}
	return d, nil
}

func (c *collection) FirstExample(ctx context.Context, example documents.Document) (documents.Document, error) {
	items, err := c.ByExample(ctx, example)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: no match for example: %w", c.name, documents.ErrNotFound)
	}
	return items[0], nil
}

func (c *collection) ByExample(ctx context.Context, example documents.Document) ([]documents.Document, error) {
	// _key se filtra por columna; el resto por contención JSONB
	body := example.WithoutSystemFields()
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal example: %w", err)
	}

	query := `
		SELECT key, rev, body
		FROM documents
		WHERE collection = $1 AND body @> $2::jsonb`
	args := []any{c.name, string(raw)}
	if key := example.Key(); key != "" {
		query += ` AND key = $3`
		args = append(args, key)
	}
	query += ` ORDER BY key ASC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return c.scanAll(rows)
}

func (c *collection) Save(ctx context.Context, doc documents.Document) (documents.Meta, error) {
	key := strings.TrimSpace(doc.Key())
	if key == "" {
		key = documents.NewKey()
	}
	if err := documents.CheckKey(c.name, key); err != nil {
		return documents.Meta{}, err
	}

	stored := doc.WithoutSystemFields()
	if err := c.checkEdge(stored); err != nil {
		return documents.Meta{}, err
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return documents.Meta{}, fmt.Errorf("postgres: marshal document: %w", err)
	}

	meta := documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: documents.NewRevision(),
	}
	now := c.now()

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (collection, key, rev, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $5)
	`, c.name, key, meta.Rev, string(raw), now)
	if err != nil {
		return documents.Meta{}, c.mapError(key, err)
	}
	return meta, nil
}

func (c *collection) Replace(ctx context.Context, key string, doc documents.Document, rev string) (documents.Meta, error) {
	return c.rewrite(ctx, key, rev, func(cur documents.Document) documents.Document {
		next := doc.WithoutSystemFields()
		if c.edge {
			for _, f := range []string{documents.FieldFrom, documents.FieldTo} {
				if _, ok := next[f]; !ok {
					next[f] = cur[f]
				}
			}
		}
		return next
	})
}

func (c *collection) Update(ctx context.Context, key string, patch documents.Document, rev string) (documents.Meta, error) {
	return c.rewrite(ctx, key, rev, func(cur documents.Document) documents.Document {
		return documents.MergePatch(cur.WithoutSystemFields(), patch)
	})
}

// rewrite bloquea la fila, valida la revisión y escribe el resultado de build.
func (c *collection) rewrite(ctx context.Context, key, rev string, build func(cur documents.Document) documents.Document) (documents.Meta, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return documents.Meta{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT key, rev, body
		FROM documents
		WHERE collection = $1 AND key = $2
		FOR UPDATE
	`, c.name, key)

	cur, err := c.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return documents.Meta{}, fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
		}
		return documents.Meta{}, err
	}
	if rev != "" && cur.Rev() != rev {
		return documents.Meta{}, fmt.Errorf("%s/%s: expected rev %s, found %s: %w", c.name, key, rev, cur.Rev(), documents.ErrConflict)
	}

	next := build(cur)
	if err := c.checkEdge(next); err != nil {
		return documents.Meta{}, err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return documents.Meta{}, fmt.Errorf("postgres: marshal document: %w", err)
	}

	meta := documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: documents.NewRevision(),
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET rev = $3, body = $4::jsonb, updated_at = $5
		WHERE collection = $1 AND key = $2
	`, c.name, key, meta.Rev, string(raw), c.now()); err != nil {
		return documents.Meta{}, c.mapError(key, err)
	}

	if err := tx.Commit(); err != nil {
		return documents.Meta{}, err
	}
	return meta, nil
}

func (c *collection) Remove(ctx context.Context, key string) error {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND key = $2
	`, c.name, key)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", c.name, key, documents.ErrNotFound)
	}
	return nil
}

func (c *collection) checkEdge(d documents.Document) error {
	if !c.edge {
		return nil
	}
	if d.String(documents.FieldFrom) == "" || d.String(documents.FieldTo) == "" {
		return fmt.Errorf("%s: edge documents require _from and _to", c.name)
	}
	return nil
}

// mapError traduce unique_violation (PK o índice) a ErrDuplicate; el resto pasa igual.
func (c *collection) mapError(key string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s/%s: %s: %w", c.name, key, pgErr.ConstraintName, documents.ErrDuplicate)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *collection) scan(row rowScanner) (documents.Document, error) {
	var (
		key, rev string
		raw      []byte
	)
	if err := row.Scan(&key, &rev, &raw); err != nil {
		return nil, err
	}

	d := documents.Document{}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("postgres: decode %s/%s: %w", c.name, key, err)
	}
	return d.ApplyMeta(documents.Meta{
		Key: key,
		ID:  documents.IDFor(c.name, key),
		Rev: rev,
	}), nil
}

func (c *collection) scanAll(rows *sql.Rows) ([]documents.Document, error) {
	defer rows.Close()

	out := make([]documents.Document, 0)
	for rows.Next() {
		d, err := c.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
