package mem

import (
	"context"
	"testing"

	"github.com/bobg/ds"
	"github.com/bobg/ds/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New(), testutil.Data(1<<20))
}

func TestAllAddresses(t *testing.T) {
	testutil.AllAddresses(context.Background(), t, func() ds.Store { return New() })
}

func TestHistories(t *testing.T) {
	testutil.Histories(context.Background(), t, New())
}
