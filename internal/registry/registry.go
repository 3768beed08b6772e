// Package registry resolves hardware device identifiers to their
// human-readable display names. The PostgreSQL-backed implementation reads the
// device inventory table; deployments without an inventory database fall back
// to a static in-memory map. Either way, lookup failures are non-fatal: the
// enrichment step falls back to the raw identifier.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"clipvault/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrUnknownDevice is returned when no registry entry exists for a device.
// Callers treat it as a soft miss, not a processing failure.
var ErrUnknownDevice = errors.New("device not registered")

// DeviceRepository implements types.DeviceRegistry on the devices table.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository creates a repository backed by the given connection
// (pool or transaction).
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// DisplayName looks up the display name for a hardware identifier. The match
// is case-insensitive because camera firmware is inconsistent about MAC
// address casing.
func (r *DeviceRepository) DisplayName(ctx context.Context, device string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx,
		`SELECT display_name FROM devices WHERE LOWER(hardware_id) = LOWER($1)`,
		device,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownDevice
		}
		return "", fmt.Errorf("device registry lookup for %s: %w", device, err)
	}
	return name, nil
}

// StaticRegistry implements types.DeviceRegistry from a fixed map, keyed by
// lowercase hardware identifier. Used when no registry DSN is configured.
type StaticRegistry struct {
	names map[string]string
}

// NewStaticRegistry builds a registry from the given map. Keys are normalized
// to lowercase.
func NewStaticRegistry(names map[string]string) *StaticRegistry {
	normalized := make(map[string]string, len(names))
	for k, v := range names {
		normalized[strings.ToLower(k)] = v
	}
	return &StaticRegistry{names: normalized}
}

// DisplayName returns the mapped name or ErrUnknownDevice.
func (s *StaticRegistry) DisplayName(_ context.Context, device string) (string, error) {
	if name, ok := s.names[strings.ToLower(device)]; ok {
		return name, nil
	}
	return "", ErrUnknownDevice
}

// Compile-time assertions.
var (
	_ types.DeviceRegistry = (*DeviceRepository)(nil)
	_ types.DeviceRegistry = (*StaticRegistry)(nil)
)
