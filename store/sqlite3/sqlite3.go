// Package sqlite3 implements a backend in a SQLite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store"
)

var _ ds.Backend = &Store{}

// Store is a Sqlite-based backend.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `objects` and `histories` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS objects (
  address BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS histories (
  owner TEXT NOT NULL,
  identity TEXT NOT NULL,
  seq INTEGER NOT NULL,
  address BLOB NOT NULL,
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

// Open opens (creating if necessary) the SQLite database at path
// and produces a Store for it.
// The database is put in WAL mode with a busy timeout,
// and the connection pool is limited to a single connection
// since SQLite allows only one writer at a time.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening db")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "executing %q", pragma)
		}
	}

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
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
	if err != nil {
		return ds.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	return a, aff > 0, nil
}

// ListAddresses produces all addresses in the store, in lexicographic order.
// The addresses are read before f is first called,
// so f may use the store.
func (s *Store) ListAddresses(ctx context.Context, start ds.Address, f func(ds.Address) error) error {
	const q = `SELECT address FROM objects WHERE address > $1 ORDER BY address`

	var addrs []ds.Address
	err := sqlutil.ForQueryRows(ctx, s.db, q, start, func(a ds.Address) {
		addrs = append(addrs, a)
	})
	if err != nil {
		return errors.Wrap(err, "querying addresses")
	}
	for _, a := range addrs {
		if err = f(a); err != nil {
			return err
		}
	}
	return nil
}

// Append implements ds.Recorder.
func (s *Store) Append(ctx context.Context, owner ds.Agent, id ds.Identity, prev, addr ds.Address) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	const q1 = `SELECT seq, address FROM histories WHERE owner = $1 AND identity = $2 ORDER BY seq DESC LIMIT 1`

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

	// Another process may have appended since the SELECT.
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
// Like ListAddresses, it finishes querying before calling f.
func (s *Store) Histories(ctx context.Context, owner ds.Agent, f func(ds.Identity, []ds.Address) error) error {
	const q = `SELECT identity, address FROM histories WHERE owner = $1 ORDER BY identity, seq`

	type entry struct {
		id      ds.Identity
		history []ds.Address
	}
	var entries []*entry
	err := sqlutil.ForQueryRows(ctx, s.db, q, string(owner), func(idstr string, a ds.Address) {
		id := ds.Identity(idstr)
		if len(entries) == 0 || entries[len(entries)-1].id != id {
			entries = append(entries, &entry{id: id})
		}
		last := entries[len(entries)-1]
		last.history = append(last.history, a)
	})
	if err != nil {
		return errors.Wrapf(err, "querying histories of %s", owner)
	}
	for _, e := range entries {
		if err = f(e.id, e.history); err != nil {
			return err
		}
	}
	return nil
}

// ListOwners implements ds.Recorder.
func (s *Store) ListOwners(ctx context.Context, f func(ds.Agent) error) error {
	const q = `SELECT DISTINCT owner FROM histories ORDER BY owner`

	var owners []ds.Agent
	err := sqlutil.ForQueryRows(ctx, s.db, q, func(owner string) {
		owners = append(owners, ds.Agent(owner))
	})
	if err != nil {
		return errors.Wrap(err, "querying owners")
	}
	for _, owner := range owners {
		if err = f(owner); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (ds.Backend, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		return Open(ctx, conn)
	})
}
