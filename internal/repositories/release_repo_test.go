package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otafleet/otafleet/internal/database"
	"github.com/otafleet/otafleet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestPool connects to the database named by TEST_DATABASE_URL and makes
// sure the schema exists. Tests are skipped when no test database is
// configured.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)

	require.NoError(t, database.EnsureSchema(context.Background(), pool))
	return pool
}

// testDeviceClass returns a unique class so runs don't collide on the
// (device_class, version) constraint.
func testDeviceClass(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	class := "test-" + uuid.New().String()
	t.Cleanup(func() {
		_, err := pool.Exec(context.Background(),
			`DELETE FROM releases WHERE device_class = $1`, class)
		if err != nil {
			t.Logf("Warning: failed to clean up test releases: %v", err)
		}
	})
	return class
}

func checksumOf(s string) *string {
	return &s
}

func TestReleaseRepository_InsertAndGet(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresReleaseRepository(pool)
	ctx := context.Background()
	class := testDeviceClass(t, pool)

	release := &models.Release{
		Version:     "1.0.0",
		DeviceClass: class,
		Notes:       "initial",
		BlobKey:     class + "-firmware-v1.0.0.bin",
		Checksum:    checksumOf("abc123"),
	}
	err := repo.Insert(ctx, release)
	require.NoError(t, err)
	assert.NotZero(t, release.ID, "ID should be assigned by the catalog")
	assert.False(t, release.UploadedAt.IsZero(), "UploadedAt should be set at commit time")

	got, err := repo.GetByID(ctx, release.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got.Version)
	assert.Equal(t, release.BlobKey, got.BlobKey)
	require.NotNil(t, got.Checksum)
	assert.Equal(t, "abc123", *got.Checksum)
}

func TestReleaseRepository_InsertDuplicateRejected(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresReleaseRepository(pool)
	ctx := context.Background()
	class := testDeviceClass(t, pool)

	first := &models.Release{
		Version:     "1.0.0",
		DeviceClass: class,
		BlobKey:     class + "-firmware-v1.0.0.bin",
		Checksum:    checksumOf("abc"),
	}
	require.NoError(t, repo.Insert(ctx, first))

	second := &models.Release{
		Version:     "1.0.0",
		DeviceClass: class,
		BlobKey:     class + "-firmware-v1.0.0.bin",
		Checksum:    checksumOf("def"),
	}
	err := repo.Insert(ctx, second)
	assert.ErrorIs(t, err, ErrDuplicateRelease)
}

func TestReleaseRepository_LatestFor(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresReleaseRepository(pool)
	ctx := context.Background()
	class := testDeviceClass(t, pool)

	for _, version := range []string{"1.0.0", "1.0.1"} {
		release := &models.Release{
			Version:     version,
			DeviceClass: class,
			BlobKey:     class + "-firmware-v" + version + ".bin",
			Checksum:    checksumOf("sum-" + version),
		}
		require.NoError(t, repo.Insert(ctx, release))
	}

	latest, err := repo.LatestFor(ctx, class)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", latest.Version)
}

func TestReleaseRepository_LatestForUnknownClass(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresReleaseRepository(pool)

	_, err := repo.LatestFor(context.Background(), "no-such-class-"+uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseRepository_DeleteByID(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresReleaseRepository(pool)
	ctx := context.Background()
	class := testDeviceClass(t, pool)

	release := &models.Release{
		Version:     "1.0.0",
		DeviceClass: class,
		BlobKey:     class + "-firmware-v1.0.0.bin",
		Checksum:    checksumOf("abc"),
	}
	require.NoError(t, repo.Insert(ctx, release))

	existed, err := repo.DeleteByID(ctx, release.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	// Deleting the same id again reports that no row existed.
	existed, err = repo.DeleteByID(ctx, release.ID)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = repo.GetByID(ctx, release.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
