package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	in := doc{Name: "alpha", Count: 3}
	require.NoError(t, s.Put(ctx, []string{"session", "s1"}, in))

	var out doc
	require.NoError(t, s.Get(ctx, []string{"session", "s1"}, &out))
	assert.Equal(t, in, out)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	var out doc
	err := s.Get(context.Background(), []string{"session", "nope"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"session", "s1"}, doc{}))
	require.NoError(t, s.Delete(ctx, []string{"session", "s1"}))
	require.NoError(t, s.Delete(ctx, []string{"session", "s1"}))

	var out doc
	assert.ErrorIs(t, s.Get(ctx, []string{"session", "s1"}, &out), ErrNotFound)
}

func TestListAndScan(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, []string{"message", "s1", "m1"}, doc{Name: "one"}))
	require.NoError(t, s.Put(ctx, []string{"message", "s1", "m2"}, doc{Name: "two"}))

	keys, err := s.List(ctx, []string{"message", "s1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m1", "m2"}, keys)

	seen := map[string]string{}
	err = s.Scan(ctx, []string{"message", "s1"}, func(key string, data json.RawMessage) error {
		var d doc
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		seen[key] = d.Name
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m1": "one", "m2": "two"}, seen)
}

func TestListMissingDirectory(t *testing.T) {
	s := New(t.TempDir())
	keys, err := s.List(context.Background(), []string{"message", "ghost"})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestConcurrentPuts(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Put(ctx, []string{"session", "shared"}, doc{Count: n})
		}(i)
	}
	wg.Wait()

	var out doc
	require.NoError(t, s.Get(ctx, []string{"session", "shared"}, &out))
	assert.True(t, out.Count >= 0 && out.Count < 16)
}
