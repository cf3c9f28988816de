package checkout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/festpos/internal/cart"
	"github.com/angelmondragon/festpos/pkg/db"
)

type flakyCatalog struct {
	products []cart.Product
	err      error
}

func (f *flakyCatalog) ListProducts(context.Context) ([]cart.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func openLocalDB(t *testing.T) *db.Client {
	t.Helper()
	client, err := db.OpenSQLite(filepath.Join(t.TempDir(), "register.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedCatalogServesLastCopyOffline(t *testing.T) {
	ctx := context.Background()
	src := &flakyCatalog{products: []cart.Product(catalog)}
	cached, err := NewCachedCatalog(ctx, src, openLocalDB(t), nil)
	require.NoError(t, err)

	live, err := cached.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, live, 3)

	src.err = errors.New("connection refused")
	offline, err := cached.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, live, offline)

	// A newer catalog replaces the cached one wholesale.
	src.err = nil
	src.products = []cart.Product{{ID: "D", Name: "Taiyaki", Price: 250}}
	_, err = cached.ListProducts(ctx)
	require.NoError(t, err)
	src.err = errors.New("connection refused")
	offline, err = cached.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, offline, 1)
	assert.Equal(t, "D", offline[0].ID)
	assert.Nil(t, offline[0].Order)
}

func TestCachedCatalogWithoutCopyReturnsSourceError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	cached, err := NewCachedCatalog(ctx, &flakyCatalog{err: boom}, openLocalDB(t), nil)
	require.NoError(t, err)

	_, err = cached.ListProducts(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestControllerStartsFromCachedCatalog(t *testing.T) {
	ctx := context.Background()
	local := openLocalDB(t)
	src := &flakyCatalog{products: []cart.Product(catalog)}
	warm, err := NewCachedCatalog(ctx, src, local, nil)
	require.NoError(t, err)
	_, err = warm.ListProducts(ctx)
	require.NoError(t, err)

	// Restart with the API down.
	src.err = errors.New("connection refused")
	cold, err := NewCachedCatalog(ctx, src, local, nil)
	require.NoError(t, err)
	ctrl, err := NewController(Options{
		Submitter: newFakeSubmitter(),
		Watcher:   newFakeWatcher(),
		Identity:  staticIdentity{userID: "u1"},
		Catalog:   cold,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Start(ctx))
	require.NoError(t, ctrl.Adjust("C", 1))
	assert.True(t, ctrl.View().CheckoutEnabled)
}
