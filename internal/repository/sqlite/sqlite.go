package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"lanwatch/internal/domain"
	"lanwatch/internal/repository"

	_ "modernc.org/sqlite"
)

var _ repository.Repository = (*Store)(nil)

// Store keeps published snapshots and a per-address sighting log in SQLite
type Store struct {
	db   *sql.DB
	keep int
}

// New opens (and migrates) the database at dbPath. keep bounds the number of
// stored snapshots; zero keeps everything.
func New(dbPath string, keep int) (*Store, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if dbPath == ":memory:" {
		dsn = dbPath
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db, keep: keep}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		range_cidr TEXT NOT NULL,
		captured_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		device_count INTEGER NOT NULL,
		stats JSON NOT NULL,
		devices JSON NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sightings (
		address TEXT PRIMARY KEY,
		hardware_addr TEXT,
		hostname TEXT,
		device_type TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		times_seen INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(captured_at);
	CREATE INDEX IF NOT EXISTS idx_sightings_last_seen ON sightings(last_seen);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores snap, updates the sighting log for the devices that
// answered and prunes old snapshots, all in one transaction
func (s *Store) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return errors.New("snapshot has no id")
	}

	devices, err := json.Marshal(snap.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, range_cidr, captured_at, duration_ns, device_count, stats, devices)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			range_cidr = excluded.range_cidr,
			captured_at = excluded.captured_at,
			duration_ns = excluded.duration_ns,
			device_count = excluded.device_count,
			stats = excluded.stats,
			devices = excluded.devices
	`, snap.ID, snap.Range, timeToUnix(snap.CapturedAt), int64(snap.Duration), len(snap.Devices), string(stats), string(devices))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	seen := timeToUnix(snap.CapturedAt)
	for _, d := range snap.Devices {
		// Hosts that never answered this round were not seen
		if !d.Outcome.Successful() {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sightings (address, hardware_addr, hostname, device_type, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(address) DO UPDATE SET
				hardware_addr = COALESCE(excluded.hardware_addr, sightings.hardware_addr),
				hostname = COALESCE(excluded.hostname, sightings.hostname),
				device_type = excluded.device_type,
				first_seen = MIN(sightings.first_seen, excluded.first_seen),
				last_seen = MAX(sightings.last_seen, excluded.last_seen),
				times_seen = sightings.times_seen + 1
		`, d.Address.String(), fieldToNull(d.HardwareAddr), fieldToNull(d.Hostname), d.DeviceType, seen, seen)
		if err != nil {
			return fmt.Errorf("failed to record sighting of %s: %w", d.Address, err)
		}
	}

	if s.keep > 0 {
		if _, err := pruneSnapshots(ctx, tx, s.keep); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LatestSnapshot returns the most recent snapshot, or nil when none is stored
func (s *Store) LatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, range_cidr, captured_at, duration_ns, stats, devices
		FROM snapshots ORDER BY captured_at DESC, rowid DESC LIMIT 1
	`)
	return scanSnapshot(row)
}

// GetSnapshot retrieves a snapshot by ID, or nil if it does not exist
func (s *Store) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, range_cidr, captured_at, duration_ns, stats, devices
		FROM snapshots WHERE id = ?
	`, id)
	return scanSnapshot(row)
}

// ListSnapshots returns up to limit summaries, newest first. limit <= 0
// returns all of them.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]repository.SnapshotSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, range_cidr, captured_at, duration_ns, device_count, stats
		FROM snapshots ORDER BY captured_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var out []repository.SnapshotSummary
	for rows.Next() {
		var (
			sum        repository.SnapshotSummary
			capturedAt int64
			durationNS int64
			stats      string
		)
		if err := rows.Scan(&sum.ID, &sum.Range, &capturedAt, &durationNS, &sum.DeviceCount, &stats); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(stats), &sum.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
		}
		sum.CapturedAt = unixToTime(capturedAt)
		sum.Duration = time.Duration(durationNS)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots and returns how many
// were removed
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := pruneSnapshots(ctx, tx, keep)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func pruneSnapshots(ctx context.Context, tx *sql.Tx, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY captured_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListSightings returns the sighting log ordered by most recently seen
func (s *Store) ListSightings(ctx context.Context) ([]repository.Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, hardware_addr, hostname, device_type, first_seen, last_seen, times_seen
		FROM sightings ORDER BY last_seen DESC, address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var out []repository.Sighting
	for rows.Next() {
		var (
			sg                  repository.Sighting
			address             string
			hardwareAddr, host  sql.NullString
			firstSeen, lastSeen int64
		)
		if err := rows.Scan(&address, &hardwareAddr, &host, &sg.DeviceType, &firstSeen, &lastSeen, &sg.TimesSeen); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		addr, err := netip.ParseAddr(address)
		if err != nil {
			return nil, fmt.Errorf("invalid stored address %q: %w", address, err)
		}
		sg.Address = addr
		sg.HardwareAddr = nullToString(hardwareAddr)
		sg.Hostname = nullToString(host)
		sg.FirstSeen = unixToTime(firstSeen)
		sg.LastSeen = unixToTime(lastSeen)
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sightings: %w", err)
	}
	return out, nil
}

func scanSnapshot(row *sql.Row) (*domain.Snapshot, error) {
	var (
		snap           domain.Snapshot
		capturedAt     int64
		durationNS     int64
		stats, devices string
	)
	err := row.Scan(&snap.ID, &snap.Range, &capturedAt, &durationNS, &stats, &devices)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(stats), &snap.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	if err := json.Unmarshal([]byte(devices), &snap.Devices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
	}
	snap.CapturedAt = unixToTime(capturedAt)
	snap.Duration = time.Duration(durationNS)
	domain.SortDevices(snap.Devices)
	return &snap, nil
}
