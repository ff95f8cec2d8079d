package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/bobg/ds"
	"github.com/bobg/ds/store/mem"
	"github.com/bobg/ds/testutil"
)

func TestStore(t *testing.T) {
	logger, _ := test.NewNullLogger()
	testutil.ReadWrite(context.Background(), t, New(mem.New(), logger), testutil.Data(1<<16))
}

func TestHistories(t *testing.T) {
	logger, _ := test.NewNullLogger()
	testutil.Histories(context.Background(), t, New(mem.New(), logger))
}

func TestEntries(t *testing.T) {
	var (
		ctx          = context.Background()
		logger, hook = test.NewNullLogger()
		s            = New(mem.New(), logger)
	)

	a, _, err := s.Put(ctx, []byte("hello"))
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "Put", entry.Message)
	require.Equal(t, logrus.InfoLevel, entry.Level)
	require.Equal(t, a, entry.Data["address"])

	err = s.Append(ctx, "alice", "id", ds.AddressOf([]byte("nope")), a)
	require.ErrorIs(t, err, ds.ErrConflict)

	entry = hook.LastEntry()
	require.Equal(t, "Append", entry.Message)
	require.Equal(t, logrus.ErrorLevel, entry.Level)
	require.Equal(t, ds.Agent("alice"), entry.Data["owner"])
	require.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), ds.ErrConflict)
}
