package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/keyval"
	"github.com/GenSpectrum/evobench-sub000/internal/queue"
)

func TestQueuePushOrder(t *testing.T) {
	q, err := queue.Open[string](t.TempDir(), keyval.SyncNone)
	require.NoError(t, err)

	_, err = q.Push("a")
	require.NoError(t, err)
	_, err = q.Push("b")
	require.NoError(t, err)
	_, err = q.Push("c")
	require.NoError(t, err)

	items, err := q.Items(context.Background(), queue.ItemOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	values := make([]string, len(items))
	for i, it := range items {
		v, loadErr := it.Entry.Load()
		require.NoError(t, loadErr)
		values[i] = v
	}

	assert.Equal(t, []string{"a", "b", "c"}, values)
}

func TestQueuePushFrontOrdersBeforeExisting(t *testing.T) {
	ctx := context.Background()

	q, err := queue.Open[string](t.TempDir(), keyval.SyncNone)
	require.NoError(t, err)

	_, err = q.Push("second")
	require.NoError(t, err)

	_, err = q.PushFront(ctx, "first")
	require.NoError(t, err)

	items, err := q.Items(ctx, queue.ItemOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first, err := items[0].Entry.Load()
	require.NoError(t, err)
	assert.Equal(t, "first", first)
}

func TestQueueRemoveAndLen(t *testing.T) {
	ctx := context.Background()

	q, err := queue.Open[int](t.TempDir(), keyval.SyncNone)
	require.NoError(t, err)

	key, err := q.Push(42)
	require.NoError(t, err)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	existed, err := q.Remove(key)
	require.NoError(t, err)
	assert.True(t, existed)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueueReverseOrder(t *testing.T) {
	ctx := context.Background()

	q, err := queue.Open[int](t.TempDir(), keyval.SyncNone)
	require.NoError(t, err)

	for _, v := range []int{1, 2, 3} {
		_, err = q.Push(v)
		require.NoError(t, err)
	}

	items, err := q.Items(ctx, queue.ItemOptions{Reverse: true})
	require.NoError(t, err)
	require.Len(t, items, 3)

	last, err := items[0].Entry.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, last, "reverse iteration must yield the newest entry first")
}
