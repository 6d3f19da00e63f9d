package repository

import (
	"context"
	"net/netip"
	"time"

	"lanwatch/internal/domain"
)

// Repository defines the interface for snapshot persistence
type Repository interface {
	// Write operations
	SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error
	Prune(ctx context.Context, keep int) (int, error)

	// Read operations
	LatestSnapshot(ctx context.Context) (*domain.Snapshot, error)
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error)
	ListSightings(ctx context.Context) ([]Sighting, error)

	// Close releases resources
	Close() error
}

// SnapshotSummary describes a stored snapshot without its devices
type SnapshotSummary struct {
	ID          string
	Range       string
	CapturedAt  time.Time
	Duration    time.Duration
	DeviceCount int
	Stats       domain.RoundStats
}

// Sighting summarizes every snapshot an address appeared in
type Sighting struct {
	Address      netip.Addr
	HardwareAddr string
	Hostname     string
	DeviceType   string
	FirstSeen    time.Time
	LastSeen     time.Time
	TimesSeen    int
}
