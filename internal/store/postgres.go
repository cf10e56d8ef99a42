package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/bson"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigratePostgres applies the embedded schema to the database at databaseURL.
func MigratePostgres(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// PostgresStore keeps every collection in one JSONB table. Documents are
// stored as relaxed extended JSON so the bson tags stay the single schema,
// and equality filters become JSONB containment.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Collection(name string) Collection {
	return &postgresCollection{db: s.db, name: name}
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

type postgresCollection struct {
	db   *sql.DB
	name string
}

// uniqueViolation is the SQLSTATE postgres reports for a unique index conflict.
const uniqueViolation = "23505"

func postgresDuplicateErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

func toJSON(v any) (string, error) {
	data, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func filterJSON(filter Filter) (string, error) {
	return toJSON(toM(filter))
}

func fromJSON(data []byte) (bson.Raw, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(data, false, &d); err != nil {
		return nil, err
	}
	return bson.Marshal(d)
}

func (c *postgresCollection) FindOne(ctx context.Context, filter Filter, out any) error {
	f, err := filterJSON(filter)
	if err != nil {
		return err
	}

	var data []byte
	err = c.db.QueryRowContext(ctx, `
		SELECT doc FROM documents
		WHERE collection = $1 AND doc @> $2::jsonb
		ORDER BY seq
		LIMIT 1
	`, c.name, f).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	raw, err := fromJSON(data)
	if err != nil {
		return err
	}
	return decodeStrict(raw, out)
}

func (c *postgresCollection) FindMany(ctx context.Context, filter Filter, out any) error {
	f, err := filterJSON(filter)
	if err != nil {
		return err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT doc FROM documents
		WHERE collection = $1 AND doc @> $2::jsonb
		ORDER BY seq
	`, c.name, f)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	var raws []bson.Raw
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		raw, err := fromJSON(data)
		if err != nil {
			return err
		}
		raws = append(raws, raw)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return decodeAll(raws, out)
}

func (c *postgresCollection) InsertOne(ctx context.Context, doc any) error {
	data, err := toJSON(doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc) VALUES ($1, $2::jsonb)
	`, c.name, data)
	return postgresDuplicateErr(err)
}

func (c *postgresCollection) InsertMany(ctx context.Context, docs []any) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, doc := range docs {
		data, err := toJSON(doc)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, doc) VALUES ($1, $2::jsonb)
		`, c.name, data); err != nil {
			return postgresDuplicateErr(err)
		}
	}

	return tx.Commit()
}

func (c *postgresCollection) UpdateOne(ctx context.Context, filter Filter, set map[string]any) (bool, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return false, err
	}
	patch, err := toJSON(set)
	if err != nil {
		return false, err
	}

	result, err := c.db.ExecContext(ctx, `
		UPDATE documents SET doc = doc || $3::jsonb
		WHERE seq = (
			SELECT seq FROM documents
			WHERE collection = $1 AND doc @> $2::jsonb
			ORDER BY seq
			LIMIT 1
		)
	`, c.name, f, patch)
	if err != nil {
		return false, postgresDuplicateErr(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (c *postgresCollection) DeleteOne(ctx context.Context, filter Filter) (bool, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return false, err
	}

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE seq = (
			SELECT seq FROM documents
			WHERE collection = $1 AND doc @> $2::jsonb
			ORDER BY seq
			LIMIT 1
		)
	`, c.name, f)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (c *postgresCollection) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return 0, err
	}

	result, err := c.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND doc @> $2::jsonb
	`, c.name, f)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (c *postgresCollection) Count(ctx context.Context, filter Filter) (int64, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return 0, err
	}

	var n int64
	err = c.db.QueryRowContext(ctx, `
		SELECT count(*) FROM documents
		WHERE collection = $1 AND doc @> $2::jsonb
	`, c.name, f).Scan(&n)
	return n, err
}
