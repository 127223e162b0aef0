package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artpar/docklite/internal/core/crypto"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

const testCompose = `services:
  web:
    image: nginx:alpine
`

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "docklite.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func createTestDeployment(t *testing.T, store Store, name, hostname string) *domain.Deployment {
	t.Helper()
	deployment, err := domain.NewDeployment(name, hostname, testCompose, map[string]string{"APP_ENV": "prod"})
	require.NoError(t, err)
	require.NoError(t, store.CreateDeployment(context.Background(), deployment))
	return deployment
}

// =============================================================================
// Create / Get
// =============================================================================

func TestCreateDeployment_AssignsSeqAndSlug(t *testing.T) {
	store := setupTestStore(t)

	first := createTestDeployment(t, store, "blog", "blog.example.com")
	second := createTestDeployment(t, store, "shop", "shop.example.com")

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "blog-example-com-1", first.Slug)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, "shop-example-com-2", second.Slug)
}

func TestCreateDeployment_DuplicateDomain(t *testing.T) {
	store := setupTestStore(t)
	createTestDeployment(t, store, "blog", "blog.example.com")

	dup, err := domain.NewDeployment("other", "Blog.Example.com", testCompose, nil)
	require.NoError(t, err)

	err = store.CreateDeployment(context.Background(), dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateDomain)
	assert.Empty(t, dup.Slug)
}

func TestCreateDeployment_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	first := createTestDeployment(t, store, "blog", "blog.example.com")

	dup, err := domain.NewDeployment("other", "other.example.com", testCompose, nil)
	require.NoError(t, err)
	dup.ID = first.ID

	err = store.CreateDeployment(context.Background(), dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestGetDeployment_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	created := createTestDeployment(t, store, "blog", "blog.example.com")

	byID, err := store.GetDeployment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, byID.Name)
	assert.Equal(t, created.Domain, byID.Domain)
	assert.Equal(t, created.Slug, byID.Slug)
	assert.Equal(t, testCompose, byID.ComposeContent)
	assert.Equal(t, map[string]string{"APP_ENV": "prod"}, byID.EnvVars)
	assert.Equal(t, domain.StatusCreated, byID.Status)
	assert.Nil(t, byID.StartedAt)

	bySlug, err := store.GetDeploymentBySlug(ctx, created.Slug)
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	byDomain, err := store.GetDeploymentByDomain(ctx, "BLOG.example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byDomain.ID)
}

func TestGetDeployment_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetDeployment(ctx, "nonexistent-id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetDeploymentBySlug(ctx, "nope-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Update / Delete / List
// =============================================================================

func TestUpdateDeployment_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	deployment := createTestDeployment(t, store, "blog", "blog.example.com")

	require.NoError(t, deployment.Transition(domain.StatusRunning, ""))
	deployment.Port = 3000
	require.NoError(t, store.UpdateDeployment(ctx, deployment))

	retrieved, err := store.GetDeployment(ctx, deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, retrieved.Status)
	assert.Equal(t, 3000, retrieved.Port)
	assert.NotNil(t, retrieved.StartedAt)
	assert.Equal(t, deployment.Slug, retrieved.Slug)
}

func TestUpdateDeployment_NotFound(t *testing.T) {
	store := setupTestStore(t)

	deployment, err := domain.NewDeployment("ghost", "ghost.example.com", testCompose, nil)
	require.NoError(t, err)

	err = store.UpdateDeployment(context.Background(), deployment)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDeployment_DomainTaken(t *testing.T) {
	store := setupTestStore(t)
	createTestDeployment(t, store, "blog", "blog.example.com")
	shop := createTestDeployment(t, store, "shop", "shop.example.com")

	shop.Domain = "blog.example.com"
	err := store.UpdateDeployment(context.Background(), shop)
	assert.ErrorIs(t, err, ErrDuplicateDomain)
}

func TestDeleteDeployment(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	deployment := createTestDeployment(t, store, "blog", "blog.example.com")

	require.NoError(t, store.DeleteDeployment(ctx, deployment.ID))

	_, err := store.GetDeployment(ctx, deployment.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.DeleteDeployment(ctx, deployment.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDeployments(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	blog := createTestDeployment(t, store, "blog", "blog.example.com")
	createTestDeployment(t, store, "shop", "shop.example.com")

	require.NoError(t, blog.Transition(domain.StatusRunning, ""))
	require.NoError(t, store.UpdateDeployment(ctx, blog))

	tests := []struct {
		name  string
		opts  ListOptions
		names []string
	}{
		{"all newest first", DefaultListOptions(), []string{"shop", "blog"}},
		{"by status", ListOptions{Status: domain.StatusRunning}, []string{"blog"}},
		{"limit", ListOptions{Limit: 1}, []string{"shop"}},
		{"offset", ListOptions{Limit: 10, Offset: 1}, []string{"blog"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := store.ListDeployments(ctx, tt.opts)
			require.NoError(t, err)

			var names []string
			for _, d := range list {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.names, names)
		})
	}
}

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, 100, ListOptions{}.Normalize().Limit)
	assert.Equal(t, 1000, ListOptions{Limit: 5000}.Normalize().Limit)
	assert.Equal(t, 0, ListOptions{Offset: -3}.Normalize().Offset)
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docklite.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	createTestDeployment(t, first, "blog", "blog.example.com")
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	list, err := second.ListDeployments(context.Background(), DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, list, 1)
	require.NoError(t, second.Ping(context.Background()))
}

// =============================================================================
// Env Var Encryption
// =============================================================================

func TestWithSecret_EncryptsEnvVarsAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docklite.db")
	ctx := context.Background()

	sealed, err := NewSQLiteStore(path, WithSecret("passphrase"))
	require.NoError(t, err)
	d := createTestDeployment(t, sealed, "blog", "blog.example.com")

	var raw string
	require.NoError(t, sealed.db.GetContext(ctx, &raw, `SELECT env_vars FROM deployments WHERE id = ?`, d.ID))
	assert.True(t, strings.HasPrefix(raw, crypto.SealedPrefix))
	assert.NotContains(t, raw, "prod")

	got, err := sealed.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"APP_ENV": "prod"}, got.EnvVars)
	require.NoError(t, sealed.Close())

	plain, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer plain.Close()
	_, err = plain.GetDeployment(ctx, d.ID)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestWithSecret_ReadsPlaintextRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docklite.db")

	plain, err := NewSQLiteStore(path)
	require.NoError(t, err)
	d := createTestDeployment(t, plain, "blog", "blog.example.com")
	require.NoError(t, plain.Close())

	sealed, err := NewSQLiteStore(path, WithSecret("passphrase"))
	require.NoError(t, err)
	defer sealed.Close()

	got, err := sealed.GetDeployment(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "prod", got.EnvVars["APP_ENV"])
}
