// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/tana-helper/pkg/vector"
)

// candidateFactor widens the KNN search so that filtering on category
// still leaves topK rows in the common case.
const candidateFactor = 8

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint

	// Namespace scopes every read and write of this driver.
	Namespace string
}

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db        *sql.DB
	namespace string
	logger    *slog.Logger
}

// NewDriver opens the database and creates the record and vec0 tables.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// vec0 tables key rows by integer rowid, so node ids and metadata live
	// in a companion table sharing that rowid.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tana_records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			node_id TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			supertags TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL DEFAULT '',
			UNIQUE(namespace, node_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating records table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS tana_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"namespace", c.Namespace,
		"vec_version", vecVersion,
	)

	return &Driver{
		db:        db,
		namespace: c.Namespace,
		logger:    logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to the little-endian BLOB
// format sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Upsert stores records, replacing those with the same node ID.
func (d *Driver) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", vector.ErrStore, err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := d.upsertOne(ctx, tx, r); err != nil {
			return fmt.Errorf("%w: %v", vector.ErrStore, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", vector.ErrStore, err)
	}

	d.logger.Debug("upserted records to sqlite-vec", "count", len(records))
	return nil
}

func (d *Driver) upsertOne(ctx context.Context, tx *sql.Tx, r vector.Record) error {
	blob := serializeFloat32(r.Embedding)
	tags := strings.Join(r.Metadata.Supertags, " ")

	var rowID int64
	err := tx.QueryRowContext(ctx,
		`SELECT rowid FROM tana_records WHERE namespace = ? AND node_id = ?`,
		d.namespace, r.ID,
	).Scan(&rowID)

	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE tana_records SET category = ?, supertags = ?, text = ? WHERE rowid = ?`,
			r.Metadata.Category, tags, r.Metadata.Text, rowID,
		); err != nil {
			return fmt.Errorf("updating record %s: %w", r.ID, err)
		}

		// vec0 does not support UPDATE.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tana_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting old embedding for %s: %w", r.ID, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx,
			`INSERT INTO tana_records(namespace, node_id, category, supertags, text) VALUES (?, ?, ?, ?, ?)`,
			d.namespace, r.ID, r.Metadata.Category, tags, r.Metadata.Text,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
		rowID, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting rowid for %s: %w", r.ID, err)
		}
	default:
		return fmt.Errorf("checking for existing record %s: %w", r.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tana_embeddings(rowid, embedding) VALUES (?, ?)`,
		rowID, blob,
	); err != nil {
		return fmt.Errorf("inserting embedding for %s: %w", r.ID, err)
	}
	return nil
}

// Query returns up to topK nearest records matching filter, scored 1/(1+d).
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	if topK <= 0 {
		topK = 10
	}

	rows, err := d.queryRows(ctx, embedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: querying vectors: %v", vector.ErrStore, err)
	}
	defer rows.Close()

	matches := []vector.Match{}
	for rows.Next() {
		var (
			m        vector.Match
			tags     string
			distance float64
		)
		if err := rows.Scan(&m.ID, &m.Metadata.Category, &tags, &m.Metadata.Text, &distance); err != nil {
			return nil, fmt.Errorf("%w: scanning query result: %v", vector.ErrStore, err)
		}
		m.Metadata.Supertags = strings.Fields(tags)

		if !filter.Matches(m.Metadata) {
			continue
		}

		m.Score = float32(1.0 / (1.0 + distance))
		matches = append(matches, m)
		if len(matches) == topK {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating query results: %v", vector.ErrStore, err)
	}

	d.logger.Debug("queried sqlite-vec", "matches", len(matches))
	return matches, nil
}

// queryRows runs the nearest-neighbour search. Without a supertag filter it
// uses the vec0 KNN index over a widened candidate set. A supertag filter
// is applied in SQL before ranking, over an exact distance scan of the
// namespace, so selective tags still fill topK.
func (d *Driver) queryRows(ctx context.Context, embedding []float32, topK int, filter vector.Filter) (*sql.Rows, error) {
	blob := serializeFloat32(embedding)

	if len(filter.Supertags) == 0 {
		return d.db.QueryContext(ctx, `
			SELECT
				r.node_id,
				r.category,
				r.supertags,
				r.text,
				knn.distance
			FROM (
				SELECT rowid, distance
				FROM tana_embeddings
				WHERE embedding MATCH ?
					AND k = ?
			) knn
			INNER JOIN tana_records r ON r.rowid = knn.rowid
			WHERE r.namespace = ?
				AND (? = '' OR r.category = ?)
			ORDER BY knn.distance
		`, blob, topK*candidateFactor, d.namespace, filter.Category, filter.Category)
	}

	tagClauses := make([]string, len(filter.Supertags))
	args := []any{blob, d.namespace, filter.Category, filter.Category}
	for i, tag := range filter.Supertags {
		tagClauses[i] = `instr(' ' || r.supertags || ' ', ' ' || ? || ' ') > 0`
		args = append(args, tag)
	}
	args = append(args, topK)

	return d.db.QueryContext(ctx, `
		SELECT
			r.node_id,
			r.category,
			r.supertags,
			r.text,
			vec_distance_l2(e.embedding, ?) AS distance
		FROM tana_records r
		INNER JOIN tana_embeddings e ON e.rowid = r.rowid
		WHERE r.namespace = ?
			AND (? = '' OR r.category = ?)
			AND (`+strings.Join(tagClauses, " OR ")+`)
		ORDER BY distance
		LIMIT ?
	`, args...)
}

// Delete removes records by node ID. Unknown IDs are ignored.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", vector.ErrStore, err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, d.namespace)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	where := fmt.Sprintf(`namespace = ? AND node_id IN (%s)`, strings.Join(placeholders, ","))

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tana_embeddings WHERE rowid IN (SELECT rowid FROM tana_records WHERE `+where+`)`,
		args...,
	); err != nil {
		return fmt.Errorf("%w: deleting embeddings: %v", vector.ErrStore, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tana_records WHERE `+where, args...); err != nil {
		return fmt.Errorf("%w: deleting records: %v", vector.ErrStore, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", vector.ErrStore, err)
	}

	d.logger.Debug("deleted records from sqlite-vec", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

var _ vector.Driver = (*Driver)(nil)
