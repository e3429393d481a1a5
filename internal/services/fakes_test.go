package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/otafleet/otafleet/internal/models"
	"github.com/otafleet/otafleet/internal/repositories"
)

// In-memory repositories mirroring the Postgres semantics, so the pipelines
// can be exercised without a database.

type fakeReleaseRepo struct {
	mu       sync.Mutex
	nextID   int64
	releases map[int64]*models.Release
}

func newFakeReleaseRepo() *fakeReleaseRepo {
	return &fakeReleaseRepo{releases: make(map[int64]*models.Release)}
}

func (r *fakeReleaseRepo) Insert(ctx context.Context, release *models.Release) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.releases {
		if existing.DeviceClass == release.DeviceClass && existing.Version == release.Version {
			return repositories.ErrDuplicateRelease
		}
	}

	r.nextID++
	release.ID = r.nextID
	release.UploadedAt = time.Now()
	stored := *release
	r.releases[release.ID] = &stored
	return nil
}

func (r *fakeReleaseRepo) GetByID(ctx context.Context, id int64) (*models.Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	release, ok := r.releases[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *release
	return &copied, nil
}

func (r *fakeReleaseRepo) GetByVersion(ctx context.Context, deviceClass, version string) (*models.Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var match *models.Release
	for _, release := range r.releases {
		if release.DeviceClass != deviceClass || release.Version != version {
			continue
		}
		if match == nil || newerThan(release, match) {
			match = release
		}
	}
	if match == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *match
	return &copied, nil
}

func (r *fakeReleaseRepo) LatestFor(ctx context.Context, deviceClass string) (*models.Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *models.Release
	for _, release := range r.releases {
		if release.DeviceClass != deviceClass {
			continue
		}
		if latest == nil || newerThan(release, latest) {
			latest = release
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeReleaseRepo) ListAll(ctx context.Context) ([]*models.Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*models.Release
	for _, release := range r.releases {
		copied := *release
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return newerThan(all[i], all[j])
	})
	return all, nil
}

func (r *fakeReleaseRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.releases[id]; !ok {
		return false, nil
	}
	delete(r.releases, id)
	return true, nil
}

// newerThan orders by upload timestamp, insertion id breaking ties.
func newerThan(a, b *models.Release) bool {
	if !a.UploadedAt.Equal(b.UploadedAt) {
		return a.UploadedAt.After(b.UploadedAt)
	}
	return a.ID > b.ID
}

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[string]*models.DeviceState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*models.DeviceState)}
}

func (r *fakeStateRepo) Upsert(ctx context.Context, state *models.DeviceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state.LastSeen = time.Now()
	stored := *state
	r.states[state.DeviceID] = &stored
	return nil
}

func (r *fakeStateRepo) GetByDeviceID(ctx context.Context, deviceID string) (*models.DeviceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[deviceID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (r *fakeStateRepo) ListAll(ctx context.Context) ([]*models.DeviceState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*models.DeviceState
	for _, state := range r.states {
		copied := *state
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastSeen.After(all[j].LastSeen)
	})
	return all, nil
}

type fakeOutcomeRepo struct {
	mu       sync.Mutex
	nextID   int64
	outcomes []*models.UpdateOutcome
}

func (r *fakeOutcomeRepo) Append(ctx context.Context, outcome *models.UpdateOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	outcome.ID = r.nextID
	outcome.CreatedAt = time.Now()
	stored := *outcome
	r.outcomes = append(r.outcomes, &stored)
	return nil
}

func (r *fakeOutcomeRepo) ListRecent(ctx context.Context, limit int) ([]*models.UpdateOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var recent []*models.UpdateOutcome
	for i := len(r.outcomes) - 1; i >= 0 && len(recent) < limit; i-- {
		copied := *r.outcomes[i]
		recent = append(recent, &copied)
	}
	return recent, nil
}

type fakeSensorRepo struct {
	mu       sync.Mutex
	nextID   int64
	readings []*models.SensorReading
}

func (r *fakeSensorRepo) Append(ctx context.Context, reading *models.SensorReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	reading.ID = r.nextID
	reading.CreatedAt = time.Now()
	stored := *reading
	r.readings = append(r.readings, &stored)
	return nil
}

func (r *fakeSensorRepo) ListRecent(ctx context.Context, deviceID string, limit, offset int) ([]*models.SensorReading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.SensorReading
	for i := len(r.readings) - 1; i >= 0; i-- {
		if deviceID != "" && r.readings[i].DeviceID != deviceID {
			continue
		}
		copied := *r.readings[i]
		matched = append(matched, &copied)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type fakePresenceRepo struct {
	mu       sync.Mutex
	presence map[string]models.Presence
	failing  bool
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{presence: make(map[string]models.Presence)}
}

func (r *fakePresenceRepo) SetPresence(ctx context.Context, presence *models.Presence) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing {
		return context.DeadlineExceeded
	}
	presence.LastSeen = time.Now()
	r.presence[presence.DeviceID] = *presence
	return nil
}

func (r *fakePresenceRepo) GetBulkPresence(ctx context.Context, deviceIDs []string) (map[string]models.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failing {
		return nil, context.DeadlineExceeded
	}
	result := make(map[string]models.Presence)
	for _, id := range deviceIDs {
		if p, ok := r.presence[id]; ok {
			result[id] = p
		} else {
			result[id] = models.Presence{DeviceID: id, Status: string(models.StatusOffline)}
		}
	}
	return result, nil
}
