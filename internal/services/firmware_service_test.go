package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/otafleet/otafleet/internal/blobstore"
	"github.com/otafleet/otafleet/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFirmwareService(t *testing.T) (*FirmwareService, *fakeReleaseRepo, blobstore.Store) {
	t.Helper()
	repo := newFakeReleaseRepo()
	blobs, err := blobstore.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	svc := NewFirmwareService(repo, blobs, 1024, "esp32", "http://ota.local")
	return svc, repo, blobs
}

func publishBinary(t *testing.T, svc *FirmwareService, version, deviceClass, payload string) int64 {
	t.Helper()
	release, err := svc.Publish(context.Background(), PublishRequest{
		Version:     version,
		DeviceClass: deviceClass,
		Filename:    "firmware.bin",
		Body:        strings.NewReader(payload),
	})
	require.NoError(t, err)
	return release.ID
}

func TestFirmwareService_PublishResolveDownload(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)
	ctx := context.Background()

	release, err := svc.Publish(ctx, PublishRequest{
		Version:     "1.0.0",
		DeviceClass: "esp32",
		Notes:       "first release",
		Filename:    "build.bin",
		Body:        strings.NewReader("DEAD"),
	})
	require.NoError(t, err)

	wantSum := sha256.Sum256([]byte("DEAD"))
	require.NotNil(t, release.Checksum)
	assert.Equal(t, hex.EncodeToString(wantSum[:]), *release.Checksum)
	assert.Equal(t, "esp32-firmware-v1.0.0.bin", release.BlobKey)

	resolved, err := svc.Resolve(ctx, "esp32")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", resolved.Version)
	assert.Equal(t, release.Checksum, resolved.Checksum)
	assert.Equal(t, "first release", resolved.Notes)
	assert.Equal(t, "http://ota.local/api/firmware/download?device=esp32&version=1.0.0", resolved.DownloadURL)

	// Leading "v" tag is normalized before lookup.
	rc, got, err := svc.Download(ctx, "esp32", "v1.0.0")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, release.ID, got.ID)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "DEAD", string(data))
}

func TestFirmwareService_ResolveReturnsNewest(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)
	ctx := context.Background()

	publishBinary(t, svc, "1.0.0", "esp32", "old")
	publishBinary(t, svc, "1.0.1", "esp32", "new")

	resolved, err := svc.Resolve(ctx, "esp32")
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", resolved.Version)

	releases, err := svc.ListReleases(ctx)
	require.NoError(t, err)
	require.Len(t, releases, 2)
	assert.Equal(t, "1.0.1", releases[0].Version)
	assert.Equal(t, "1.0.0", releases[1].Version)
}

func TestFirmwareService_ResolveUsesDefaultClass(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)
	ctx := context.Background()

	publishBinary(t, svc, "2.0.0", "", "payload")

	resolved, err := svc.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "esp32", resolved.Device)
	assert.Equal(t, "2.0.0", resolved.Version)
}

func TestFirmwareService_ResolveUnknownClass(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)

	_, err := svc.Resolve(context.Background(), "stm32")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestFirmwareService_PublishRejectsWrongExtension(t *testing.T) {
	svc, _, blobs := newTestFirmwareService(t)

	_, err := svc.Publish(context.Background(), PublishRequest{
		Version:  "1.0.0",
		Filename: "firmware.elf",
		Body:     strings.NewReader("binary"),
	})
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	// The binary never reached the store.
	ok, err := blobs.Exists(context.Background(), "esp32-firmware-v1.0.0.elf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFirmwareService_PublishRejectsMissingVersion(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)

	_, err := svc.Publish(context.Background(), PublishRequest{
		Filename: "firmware.bin",
		Body:     strings.NewReader("binary"),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFirmwareService_PublishRejectsOversizedStream(t *testing.T) {
	svc, _, blobs := newTestFirmwareService(t)

	_, err := svc.Publish(context.Background(), PublishRequest{
		Version:  "1.0.0",
		Filename: "firmware.bin",
		Body:     strings.NewReader(strings.Repeat("x", 2048)),
	})
	assert.ErrorIs(t, err, ErrArtifactTooLarge)

	// The aborted write left no partial blob behind.
	ok, err := blobs.Exists(context.Background(), "esp32-firmware-v1.0.0.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFirmwareService_PublishExactlyMaxSize(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)

	release, err := svc.Publish(context.Background(), PublishRequest{
		Version:  "1.0.0",
		Filename: "firmware.bin",
		Body:     strings.NewReader(strings.Repeat("x", 1024)),
	})
	require.NoError(t, err)
	assert.NotNil(t, release.Checksum)
}

func TestFirmwareService_PublishDuplicatePairRejected(t *testing.T) {
	svc, _, blobs := newTestFirmwareService(t)
	ctx := context.Background()

	publishBinary(t, svc, "1.0.0", "esp32", "original")

	_, err := svc.Publish(ctx, PublishRequest{
		Version:     "1.0.0",
		DeviceClass: "esp32",
		Filename:    "firmware.bin",
		Body:        strings.NewReader("imposter"),
	})
	assert.ErrorIs(t, err, ErrReleaseExists)

	// The rejected publish must not have clobbered the original blob.
	rc, err := blobs.Get(ctx, "esp32-firmware-v1.0.0.bin")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestFirmwareService_SameVersionDifferentClass(t *testing.T) {
	svc, _, _ := newTestFirmwareService(t)
	ctx := context.Background()

	publishBinary(t, svc, "1.0.0", "esp32", "esp payload")
	publishBinary(t, svc, "1.0.0", "esp8266", "8266 payload")

	rc, _, err := svc.Download(ctx, "esp8266", "1.0.0")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "8266 payload", string(data))
}

func TestFirmwareService_Retract(t *testing.T) {
	svc, _, blobs := newTestFirmwareService(t)
	ctx := context.Background()

	id := publishBinary(t, svc, "1.0.0", "esp32", "DEAD")

	require.NoError(t, svc.Retract(ctx, id))

	ok, err := blobs.Exists(ctx, "esp32-firmware-v1.0.0.bin")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.Resolve(ctx, "esp32")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	_, _, err = svc.Download(ctx, "esp32", "1.0.0")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	// A second retraction of the same id reports NotFound.
	assert.ErrorIs(t, svc.Retract(ctx, id), repositories.ErrNotFound)
}

func TestFirmwareService_RetractUnknownID(t *testing.T) {
	svc, repo, blobs := newTestFirmwareService(t)
	ctx := context.Background()

	publishBinary(t, svc, "1.0.0", "esp32", "DEAD")

	err := svc.Retract(ctx, 9999)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	// Catalog and blob store are unchanged.
	releases, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, releases, 1)

	ok, err := blobs.Exists(ctx, "esp32-firmware-v1.0.0.bin")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFirmwareService_DownloadDanglingRow(t *testing.T) {
	svc, _, blobs := newTestFirmwareService(t)
	ctx := context.Background()

	publishBinary(t, svc, "1.0.0", "esp32", "DEAD")

	// Simulate a retraction interrupted between blob delete and row delete.
	require.NoError(t, blobs.Delete(ctx, "esp32-firmware-v1.0.0.bin"))

	_, _, err := svc.Download(ctx, "esp32", "1.0.0")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestNormalizeVersion(t *testing.T) {
	assert.Equal(t, "1.0.0", NormalizeVersion("v1.0.0"))
	assert.Equal(t, "1.0.0", NormalizeVersion("V1.0.0"))
	assert.Equal(t, "1.0.0", NormalizeVersion("1.0.0"))
	assert.Equal(t, "v", NormalizeVersion("v"))
	assert.Equal(t, "", NormalizeVersion(""))
}

func TestBlobKey(t *testing.T) {
	assert.Equal(t, "esp32-firmware-v1.0.0.bin", BlobKey("esp32", "1.0.0", ".bin"))
}
