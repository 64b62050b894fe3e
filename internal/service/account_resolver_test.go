package service_test

import (
	"context"
	"testing"

	"github.com/straye-as/order-sync/internal/crm"
	"github.com/straye-as/order-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountResolver_LoadAccountIndex(t *testing.T) {
	fake := newFakeCRM()
	c1 := fake.seedAccount("Acme", "C1", "D1")
	fake.seedAccount("No Number", "", "D1")
	c2 := fake.seedAccount("Beta", "C2", "D2")
	h := newSyncHarness(t, fake)

	index, err := h.resolver.LoadAccountIndex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, index.Len())
	ref, ok := index.Get("C1", "D1")
	assert.True(t, ok)
	assert.Equal(t, domain.AccountRef{ID: c1, Name: "Acme"}, ref)
	ref, ok = index.Get("C2", "D2")
	assert.True(t, ok)
	assert.Equal(t, c2, ref.ID)
	assert.Equal(t, 1, fake.count("QueryAccounts"))
}

func TestAccountResolver_LoadAccountIndexError(t *testing.T) {
	fake := newFakeCRM()
	fake.lookupErr = func(operation string) error {
		return &crm.APIError{StatusCode: 500, Body: "down"}
	}
	h := newSyncHarness(t, fake)

	index, err := h.resolver.LoadAccountIndex(context.Background())
	assert.Error(t, err)
	assert.Nil(t, index)
}

func TestAccountResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("index hit makes no remote call", func(t *testing.T) {
		fake := newFakeCRM()
		h := newSyncHarness(t, fake)
		index := domain.NewAccountIndex()
		index.Put("C1", "D1", domain.AccountRef{ID: "001A", Name: "Acme"})

		ref, found, err := h.resolver.Resolve(ctx, index, "C1", "D1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "001A", ref.ID)
		assert.Equal(t, 0, fake.count("FindAccount"))
	})

	t.Run("index miss queries once and populates the index", func(t *testing.T) {
		fake := newFakeCRM()
		id := fake.seedAccount("Beta", "C2", "D2")
		h := newSyncHarness(t, fake)
		index := domain.NewAccountIndex()

		ref, found, err := h.resolver.Resolve(ctx, index, "C2", "D2")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, id, ref.ID)
		assert.Equal(t, 1, fake.count("FindAccount"))

		cached, ok := index.Get("C2", "D2")
		assert.True(t, ok)
		assert.Equal(t, id, cached.ID)

		_, _, err = h.resolver.Resolve(ctx, index, "C2", "D2")
		require.NoError(t, err)
		assert.Equal(t, 1, fake.count("FindAccount"))
	})

	t.Run("identity is trimmed", func(t *testing.T) {
		fake := newFakeCRM()
		h := newSyncHarness(t, fake)
		index := domain.NewAccountIndex()
		index.Put("C1", "D1", domain.AccountRef{ID: "001A"})

		_, found, err := h.resolver.Resolve(ctx, index, " C1 ", "D1  ")
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("not found", func(t *testing.T) {
		fake := newFakeCRM()
		h := newSyncHarness(t, fake)
		index := domain.NewAccountIndex()

		_, found, err := h.resolver.Resolve(ctx, index, "C3", "D3")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 0, index.Len())
	})

	t.Run("empty identity makes no remote call", func(t *testing.T) {
		fake := newFakeCRM()
		h := newSyncHarness(t, fake)

		_, found, err := h.resolver.Resolve(ctx, domain.NewAccountIndex(), "", "D1")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 0, fake.count("FindAccount"))
	})

	t.Run("lookup failure is not reported as not found", func(t *testing.T) {
		fake := newFakeCRM()
		fake.lookupErr = func(operation string) error {
			return &crm.APIError{StatusCode: 500, Body: "boom"}
		}
		h := newSyncHarness(t, fake)

		_, found, err := h.resolver.Resolve(ctx, domain.NewAccountIndex(), "C1", "D1")
		assert.Error(t, err)
		assert.False(t, found)
	})
}

func TestAccountResolver_CreateIfMissing(t *testing.T) {
	fake := newFakeCRM()
	h := newSyncHarness(t, fake)
	index := domain.NewAccountIndex()

	ref, err := h.resolver.CreateIfMissing(context.Background(), index, " New Co ", "C5", "D5")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "New Co", ref.Name)

	cached, ok := index.Get("C5", "D5")
	assert.True(t, ok)
	assert.Equal(t, ref, cached)
}
