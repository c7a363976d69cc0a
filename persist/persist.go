// Package persist implements SQLite-backed MPS snapshots: one row per
// nonzero tensor entry, keyed by stage and site, plus a meta table recording the
// gauge site so a run can be resumed exactly where it left off.
//
// References:
//   - The teacher's mat.DiskMatrix (disk.go): per-entry (i, j, re, im) rows
//     over a database/sql connection, generalized here from a single 2D
//     matrix table to one row per (stage, site, a, b, c) MPS tensor entry.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/corvid-lab/dmrg/mps"
	"github.com/fumin/tensor"
)

const (
	tableMeta      = "meta"
	tableShape     = "site_shape"
	tableTensor    = "site_tensor"
	defaultTimeout = 48 * time.Hour
)

// Store is a SQLite-backed container for MPS snapshots, versioned by stage
// index (spec.md section 4.7, "Multi-stage runs may version filenames by
// stage index").
type Store struct {
	Path string
	db   *sql.DB
}

// Open creates (or reopens) a Store at path, creating its schema if absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: path, db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func prepareSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (stage INTEGER PRIMARY KEY, gauge_site INTEGER, n_sites INTEGER) STRICT`, tableMeta),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (stage INTEGER, site INTEGER, d_left INTEGER, d_up INTEGER, d_right INTEGER, PRIMARY KEY (stage, site)) STRICT`, tableShape),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (stage INTEGER, site INTEGER, a INTEGER, b INTEGER, c INTEGER, re REAL, im REAL, PRIMARY KEY (stage, site, a, b, c)) STRICT`, tableTensor),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, stmt)
		}
	}
	return nil
}

// Save writes ms and gaugeSite under the given stage index, replacing any
// snapshot already stored for that stage.
func (s *Store) Save(ms mps.State, gaugeSite, stage int) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer tx.Rollback()

	if err := deleteStage(ctx, tx, stage); err != nil {
		return errors.Wrap(err, "")
	}

	metaSQL := fmt.Sprintf(`INSERT INTO %s (stage, gauge_site, n_sites) VALUES (?, ?, ?)`, tableMeta)
	if _, err := tx.ExecContext(ctx, metaSQL, stage, gaugeSite, len(ms)); err != nil {
		return errors.Wrap(err, "")
	}

	shapeSQL := fmt.Sprintf(`INSERT INTO %s (stage, site, d_left, d_up, d_right) VALUES (?, ?, ?, ?, ?)`, tableShape)
	entrySQL := fmt.Sprintf(`INSERT INTO %s (stage, site, a, b, c, re, im) VALUES (?, ?, ?, ?, ?, ?, ?)`, tableTensor)
	for site, t := range ms {
		shape := t.Shape()
		if len(shape) != 3 {
			return errors.Errorf("persist: site %d has rank %d, want 3", site, len(shape))
		}
		if _, err := tx.ExecContext(ctx, shapeSQL, stage, site, shape[0], shape[1], shape[2]); err != nil {
			return errors.Wrap(err, "")
		}
		for idx, v := range t.All() {
			if v == 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, entrySQL, stage, site, idx[0], idx[1], idx[2], real(v), imag(v)); err != nil {
				return errors.Wrap(err, "")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// Load restores the MPS and gauge site most recently saved under stage.
func (s *Store) Load(stage int) (mps.State, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var gaugeSite, nSites int
	metaSQL := fmt.Sprintf(`SELECT gauge_site, n_sites FROM %s WHERE stage = ?`, tableMeta)
	if err := s.db.QueryRowContext(ctx, metaSQL, stage).Scan(&gaugeSite, &nSites); err != nil {
		return nil, 0, errors.Wrap(err, "")
	}

	ms := make(mps.State, nSites)
	shapeSQL := fmt.Sprintf(`SELECT site, d_left, d_up, d_right FROM %s WHERE stage = ? ORDER BY site`, tableShape)
	rows, err := s.db.QueryContext(ctx, shapeSQL, stage)
	if err != nil {
		return nil, 0, errors.Wrap(err, "")
	}
	for rows.Next() {
		var site, dLeft, dUp, dRight int
		if err := rows.Scan(&site, &dLeft, &dUp, &dRight); err != nil {
			rows.Close()
			return nil, 0, errors.Wrap(err, "")
		}
		ms[site] = tensor.Zeros(dLeft, dUp, dRight)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, errors.Wrap(err, "")
	}
	rows.Close()

	for site, t := range ms {
		if t == nil {
			return nil, 0, errors.Errorf("persist: missing shape row for stage %d site %d", stage, site)
		}
	}

	entrySQL := fmt.Sprintf(`SELECT site, a, b, c, re, im FROM %s WHERE stage = ?`, tableTensor)
	erows, err := s.db.QueryContext(ctx, entrySQL, stage)
	if err != nil {
		return nil, 0, errors.Wrap(err, "")
	}
	defer erows.Close()
	for erows.Next() {
		var site, a, b, c int
		var re, im float32
		if err := erows.Scan(&site, &a, &b, &c, &re, &im); err != nil {
			return nil, 0, errors.Wrap(err, "")
		}
		ms[site].SetAt([]int{a, b, c}, complex(re, im))
	}
	if err := erows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "")
	}

	return ms, gaugeSite, nil
}

func deleteStage(ctx context.Context, tx *sql.Tx, stage int) error {
	for _, table := range []string{tableMeta, tableShape, tableTensor} {
		sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE stage = ?`, table)
		if _, err := tx.ExecContext(ctx, sqlStr, stage); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}
