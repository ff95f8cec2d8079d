// Package pg implements a backend in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a Postgresql-based backend.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `objects` and `histories` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS objects (
  address BYTEA PRIMARY KEY NOT NULL,
  data BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS histories (
  owner TEXT NOT NULL,
  identity TEXT NOT NULL,
  seq BIGINT NOT NULL,
  address BYTEA NOT NULL,
  PRIMARY KEY (owner, identity, seq)
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `objects` and `histories`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// Get gets the bytes at address `a`.
func (s *Store) Get(ctx context.Context, a ds.Address) ([]byte, error) {
	const q = `SELECT data FROM objects WHERE address = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, a).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, ds.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting %s", a)
}

// Put adds bytes to the store if they weren't already present.
func (s *Store) Put(ctx context.Context, b []byte) (ds.Address, bool, error) {
	const q = `INSERT INTO objects (address, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	if b == nil {
		b = []byte{} // not NULL
	}
	a := ds.AddressOf(b)
	res, err := s.db.ExecContext(ctx, q, a, b)
	if err != nil {
		return ds.Zero, false, errors.Wrap(err, "inserting object")
	}

	aff, err := res.RowsAffected()
	return a, aff > 0, errors.Wrap(err, "counting affected rows")
}

// ListAddresses produces all addresses in the store, in lexicographic order.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	const q = `SELECT address FROM objects WHERE address > $1 ORDER BY address`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, func(a ds.Address) error {
		return f(a)
	})
}

// Append implements ds.Recorder.
// The head row is locked with SELECT ... FOR UPDATE;
// two appends racing to start a new history are resolved by the primary key,
// and the loser gets ds.ErrConflict.
func (s *Store) Append(ctx context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	const q1 = `SELECT seq, address FROM histories WHERE owner = $1 AND identity = $2 ORDER BY seq DESC LIMIT 1 FOR UPDATE`

	var (
		seq  int64
		head ds.Address
	)
	err = tx.QueryRowContext(ctx, q1, string(owner), string(id)).Scan(&seq, &head)
	if stderrs.Is(err, sql.ErrNoRows) {
		// ok, new history
	} else if err != nil {
		return errors.Wrapf(err, "getting head of %s", id)
	}
	if head != prev {
		return ds.ErrConflict
	}

	const q2 = `INSERT INTO histories (owner, identity, seq, address) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`

	res, err := tx.ExecContext(ctx, q2, string(owner), string(id), seq+1, addr)
	if err != nil {
		return errors.Wrapf(err, "appending to history of %s", id)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return ds.ErrConflict
	}

	return errors.Wrap(tx.Commit(), "committing transaction")
}

// History implements ds.Recorder.
func (s *Store) History(ctx context.Context, owner ds.Agent, id ds.Identity) ([]ds.Address, error) {
	const q = `SELECT address FROM histories WHERE owner = $1 AND identity = $2 ORDER BY seq`

	var result []ds.Address
	err := sqlutil.ForQueryRows(ctx, s.db, q, string(owner), string(id), func(a ds.Address) {
		result = append(result, a)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "querying history of %s", id)
	}
	if len(result) == 0 {
		return nil, ds.ErrNotFound
	}
	return result, nil
}

// Histories implements ds.Recorder.
func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	const q = `SELECT identity, address FROM histories WHERE owner = $1 ORDER BY identity COLLATE "C", seq`

	var (
		lastID  *ds.Identity
		history []ds.Address
	)
	err := sqlutil.ForQueryRows(ctx, s.db, q, string(owner), func(idstr string, a ds.Address) error {
		id := ds.Identity(idstr)
		if lastID != nil && id != *lastID {
			if err := f(*lastID, history); err != nil {
				return err
			}
			history = nil
		}
		lastID = &id
		history = append(history, a)
		return nil
	})
	if err != nil {
		return err
	}
	if lastID != nil {
		return f(*lastID, history)
	}
	return nil
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	const q = `SELECT DISTINCT owner COLLATE "C" AS o FROM histories ORDER BY o`
	return sqlutil.ForQueryRows(ctx, s.db, q, func(owner string) error {
		return f(ds.Agent(owner))
	})
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
