package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/bobg/ds/testutil"
)

func TestStore(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		testutil.ReadWrite(ctx, t, store, testutil.Data(1<<20))
	})
}

func TestHistories(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		testutil.Histories(ctx, t, store)
	})
}

const connVar = "DS_PG_TESTING_CONN"

// withStore runs f against a fresh schema.
// The database named by the connection string must be disposable:
// its objects and histories tables are dropped first.
func withStore(t *testing.T, f func(context.Context, *Store)) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err = db.ExecContext(ctx, `DROP TABLE IF EXISTS objects, histories`); err != nil {
		t.Fatal(err)
	}

	store, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	f(ctx, store)
}
