package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/otafleet/otafleet/internal/blobstore"
	"github.com/otafleet/otafleet/internal/models"
	"github.com/otafleet/otafleet/internal/repositories"
)

var (
	// ErrInvalidArtifact rejects uploads whose extension is not on the
	// allow-list; the binary never reaches the store.
	ErrInvalidArtifact = errors.New("only .bin firmware files are accepted")
	// ErrArtifactTooLarge rejects uploads over the configured size ceiling.
	ErrArtifactTooLarge = errors.New("firmware binary exceeds maximum size")
	// ErrReleaseExists rejects a second publish of an already published
	// (device class, version) pair.
	ErrReleaseExists = errors.New("release already published for this device class and version")
)

const firmwareExtension = ".bin"

type FirmwareService struct {
	releases     repositories.ReleaseRepository
	blobs        blobstore.Store
	maxSize      int64
	defaultClass string
	baseURL      string

	publishLocks keyedMutex
}

type PublishRequest struct {
	Version     string
	DeviceClass string
	Notes       string
	Filename    string
	Body        io.Reader
}

type ResolveResult struct {
	Version     string    `json:"version"`
	Device      string    `json:"device"`
	Notes       string    `json:"notes"`
	Checksum    *string   `json:"checksum,omitempty"`
	UploadDate  time.Time `json:"uploadDate"`
	DownloadURL string    `json:"downloadUrl"`
}

func NewFirmwareService(
	releases repositories.ReleaseRepository,
	blobs blobstore.Store,
	maxSize int64,
	defaultClass string,
	baseURL string,
) *FirmwareService {
	return &FirmwareService{
		releases:     releases,
		blobs:        blobs,
		maxSize:      maxSize,
		defaultClass: defaultClass,
		baseURL:      baseURL,
	}
}

// MaxSize is the configured ceiling on firmware binary size in bytes.
func (s *FirmwareService) MaxSize() int64 {
	return s.maxSize
}

// NormalizeVersion strips a leading human-readable "v" tag so "v1.0.0" and
// "1.0.0" name the same release.
func NormalizeVersion(version string) string {
	if len(version) > 1 && (version[0] == 'v' || version[0] == 'V') {
		return version[1:]
	}
	return version
}

// BlobKey derives the storage name for a binary from its device class,
// version and extension. The key is deterministic so the download path can
// reconstruct it from catalog data alone.
func BlobKey(deviceClass, version, extension string) string {
	return fmt.Sprintf("%s-firmware-v%s%s", deviceClass, version, extension)
}

// Publish runs the full pipeline: validate, stream the binary into the blob
// store with the size ceiling enforced as it is consumed, read the persisted
// blob back to compute its checksum, then insert the catalog row. Publishes
// to the same blob key are serialized. If the catalog insert fails the blob
// is left orphaned on disk rather than rolled back.
func (s *FirmwareService) Publish(ctx context.Context, req PublishRequest) (*models.Release, error) {
	if req.Version == "" {
		return nil, validationError("version is required")
	}
	deviceClass := req.DeviceClass
	if deviceClass == "" {
		deviceClass = s.defaultClass
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	if ext != firmwareExtension {
		return nil, ErrInvalidArtifact
	}

	version := NormalizeVersion(req.Version)
	key := BlobKey(deviceClass, version, ext)

	unlock := s.publishLocks.lock(key)
	defer unlock()

	// Check for a duplicate before touching the store, so a rejected publish
	// cannot clobber the existing release's blob. The unique constraint on
	// (device_class, version) backstops this at insert time.
	_, err := s.releases.GetByVersion(ctx, deviceClass, version)
	if err == nil {
		return nil, ErrReleaseExists
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing release: %w", err)
	}

	limited := &cappedReader{r: req.Body, remaining: s.maxSize}
	if err := s.blobs.Put(ctx, key, limited); err != nil {
		if limited.exceeded {
			return nil, ErrArtifactTooLarge
		}
		return nil, fmt.Errorf("failed to store firmware blob: %w", err)
	}

	checksum, err := s.checksumBlob(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum stored blob: %w", err)
	}

	release := &models.Release{
		Version:     version,
		DeviceClass: deviceClass,
		Notes:       req.Notes,
		BlobKey:     key,
		Checksum:    &checksum,
	}

	if err := s.releases.Insert(ctx, release); err != nil {
		if errors.Is(err, repositories.ErrDuplicateRelease) {
			return nil, ErrReleaseExists
		}
		// The blob stays on disk unreferenced; log it rather than attempt a
		// rollback delete.
		log.Printf("orphaned firmware blob %s after catalog insert failure: %v", key, err)
		return nil, fmt.Errorf("failed to insert release: %w", err)
	}

	return release, nil
}

// Resolve returns the newest release for a device class along with a
// download reference constructed from catalog data.
func (s *FirmwareService) Resolve(ctx context.Context, deviceClass string) (*ResolveResult, error) {
	if deviceClass == "" {
		deviceClass = s.defaultClass
	}

	release, err := s.releases.LatestFor(ctx, deviceClass)
	if err != nil {
		return nil, err
	}

	return &ResolveResult{
		Version:     release.Version,
		Device:      release.DeviceClass,
		Notes:       release.Notes,
		Checksum:    release.Checksum,
		UploadDate:  release.UploadedAt,
		DownloadURL: s.downloadURL(release),
	}, nil
}

// Download locates a release by device class and version and streams its
// blob. A catalog row whose blob is gone (interrupted retraction) reports
// NotFound like a missing row.
func (s *FirmwareService) Download(ctx context.Context, deviceClass, version string) (io.ReadCloser, *models.Release, error) {
	if deviceClass == "" {
		deviceClass = s.defaultClass
	}
	if version == "" {
		return nil, nil, validationError("version is required")
	}

	release, err := s.releases.GetByVersion(ctx, deviceClass, NormalizeVersion(version))
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Get(ctx, release.BlobKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open firmware blob: %w", err)
	}

	return rc, release, nil
}

func (s *FirmwareService) ListReleases(ctx context.Context) ([]*models.Release, error) {
	return s.releases.ListAll(ctx)
}

// Retract removes a release as a unit: blob first, then catalog row. If the
// process dies between the two steps the catalog over-reports availability (a
// dangling row a retried retraction cleans up) rather than leaving an
// unindexed blob on disk.
func (s *FirmwareService) Retract(ctx context.Context, id int64) error {
	release, err := s.releases.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, release.BlobKey); err != nil {
		return fmt.Errorf("failed to delete firmware blob: %w", err)
	}

	existed, err := s.releases.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete release row: %w", err)
	}
	if !existed {
		return repositories.ErrNotFound
	}
	return nil
}

// PublishFromBuild publishes a CI build artifact under a timestamp-derived
// version, mirroring how pushed builds were versioned before the catalog
// enforced uniqueness. Timestamp versions sort correctly under the
// upload-time recency rule.
func (s *FirmwareService) PublishFromBuild(ctx context.Context, artifactPath, commit string) (*models.Release, error) {
	if artifactPath == "" {
		return nil, validationError("no build artifact path configured")
	}

	f, err := os.Open(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open build artifact: %w", err)
	}
	defer f.Close()

	version := strings.NewReplacer(":", "-", ".", "-").
		Replace(time.Now().UTC().Format(time.RFC3339))

	return s.Publish(ctx, PublishRequest{
		Version:     version,
		DeviceClass: s.defaultClass,
		Notes:       fmt.Sprintf("Auto build from commit: %s", commit),
		Filename:    filepath.Base(artifactPath),
		Body:        f,
	})
}

func (s *FirmwareService) checksumBlob(ctx context.Context, key string) (string, error) {
	rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *FirmwareService) downloadURL(release *models.Release) string {
	params := url.Values{}
	params.Set("device", release.DeviceClass)
	params.Set("version", release.Version)
	return s.baseURL + "/api/firmware/download?" + params.Encode()
}

// cappedReader fails the stream once more than remaining bytes have been
// read, so an oversized upload is cut off mid-transfer instead of being
// buffered and rejected afterwards.
type cappedReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		c.exceeded = true
		return 0, ErrArtifactTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return 0, ErrArtifactTooLarge
	}
	return n, err
}

// keyedMutex serializes publishes per blob key within the process. Entries
// are retained for the process lifetime; the key space is bounded by the
// number of distinct releases.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
