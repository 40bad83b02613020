package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kjstillabower/forecast-alert-service/internal/models"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	locations map[int64]models.Location
	snapshots map[int64]models.ForecastSnapshot
	audit     []models.AuditRecord
}

// NewMemoryStore returns a MemoryStore seeded with locs.
func NewMemoryStore(locs []models.Location) *MemoryStore {
	s := &MemoryStore{
		locations: make(map[int64]models.Location, len(locs)),
		snapshots: make(map[int64]models.ForecastSnapshot),
	}
	for _, l := range locs {
		s.locations[l.ID] = l
	}
	return s
}

// ListLocations returns all locations ordered by id.
func (s *MemoryStore) ListLocations(ctx context.Context) ([]models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Location, 0, len(s.locations))
	for _, l := range s.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetLocation returns the location or ErrLocationNotFound.
func (s *MemoryStore) GetLocation(ctx context.Context, id int64) (models.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok {
		return models.Location{}, fmt.Errorf("%w: %d", ErrLocationNotFound, id)
	}
	return l, nil
}

// GetSnapshot returns a copy of the stored snapshot.
func (s *MemoryStore) GetSnapshot(ctx context.Context, locationID int64) (models.ForecastSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[locationID]
	if !ok {
		return models.ForecastSnapshot{}, false, nil
	}
	return cloneSnapshot(snap), true, nil
}

// UpsertSnapshot overwrites the snapshot for locationID.
func (s *MemoryStore) UpsertSnapshot(ctx context.Context, locationID int64, snap models.ForecastSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[locationID] = cloneSnapshot(snap)
	return nil
}

// AppendForecastAudit appends rec to the in-memory audit trail.
func (s *MemoryStore) AppendForecastAudit(ctx context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, rec)
	return nil
}

// Audit returns a copy of the audit trail.
func (s *MemoryStore) Audit() []models.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditRecord(nil), s.audit...)
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func cloneSnapshot(snap models.ForecastSnapshot) models.ForecastSnapshot {
	out := snap
	out.Hourly = append([]models.HourPoint{}, snap.Hourly...)
	out.Daily = append([]models.DayPoint{}, snap.Daily...)
	if snap.Missing != nil {
		out.Missing = append([]string(nil), snap.Missing...)
	}
	return out
}
