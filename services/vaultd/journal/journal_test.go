package journal

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	nativevault "stakevault/native/vault"
)

func setupJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	j, err := Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func event(kind, account string) nativevault.Event {
	return nativevault.Event{Type: kind, Attributes: map[string]string{"account": account, "assets": "10"}}
}

func TestAppendAssignsSequences(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	first, err := j.Append(ctx, []nativevault.Event{
		event(nativevault.TypeStaked, "0xA"),
		event(nativevault.TypeUnstakeStarted, "0xA"),
	}, at)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, uint64(1), first[0].Sequence)
	require.Equal(t, uint64(2), first[1].Sequence)

	second, err := j.Append(ctx, []nativevault.Event{event(nativevault.TypeStaked, "0xB")}, at)
	require.NoError(t, err)
	require.Equal(t, uint64(3), second[0].Sequence)

	none, err := j.Append(ctx, nil, at)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestListFilters(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	_, err := j.Append(ctx, []nativevault.Event{
		event(nativevault.TypeStaked, "0xA"),
		event(nativevault.TypeStaked, "0xB"),
		event(nativevault.TypeWithdrawn, "0xA"),
	}, time.Now())
	require.NoError(t, err)

	all, err := j.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	byAccount, err := j.List(ctx, Filter{Account: "0xA"})
	require.NoError(t, err)
	require.Len(t, byAccount, 2)

	byType, err := j.List(ctx, Filter{Type: nativevault.TypeStaked, Limit: 1})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	require.Equal(t, "0xA", byType[0].Account)

	after, err := j.List(ctx, Filter{AfterSequence: 2})
	require.NoError(t, err)
	require.Len(t, after, 1)
	attrs, err := after[0].Decoded()
	require.NoError(t, err)
	require.Equal(t, "10", attrs["assets"])
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorIs(t, err, errUnsupportedDriver)
}

func TestConcurrentAppendsKeepSequencesContiguous(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	const writers = 32

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		account := fmt.Sprintf("0x%02x", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := j.Append(ctx, []nativevault.Event{
				event(nativevault.TypeStaked, account),
				event(nativevault.TypeUnstakeStarted, account),
			}, time.Now())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := j.List(ctx, Filter{Limit: maxLimit})
	require.NoError(t, err)
	require.Len(t, all, 2*writers)
	for i, record := range all {
		require.Equal(t, uint64(i+1), record.Sequence)
		if i%2 == 1 {
			require.Equal(t, all[i-1].Account, record.Account, "batch split at sequence %d", record.Sequence)
		}
	}
}
