package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/skobkin/web888mon/internal/connectors"
)

// IdentitySourceCache marks identities loaded from the local cache.
const IdentitySourceCache = "cache"

// IdentityRepo remembers the last hardware identity seen for each host so it
// survives restarts where the device reports nothing.
type IdentityRepo struct {
	db *sql.DB
}

func NewIdentityRepo(db *sql.DB) *IdentityRepo {
	return &IdentityRepo{db: db}
}

// Upsert stores id under its host. Empty fields never erase known values.
func (r *IdentityRepo) Upsert(ctx context.Context, id connectors.DeviceIdentity) error {
	host := strings.TrimSpace(id.Host)
	if host == "" {
		return errors.New("upsert identity: host is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_identity(host, mac, serial, dna, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			mac = COALESCE(NULLIF(excluded.mac, ''), device_identity.mac),
			serial = COALESCE(NULLIF(excluded.serial, ''), device_identity.serial),
			dna = COALESCE(NULLIF(excluded.dna, ''), device_identity.dna),
			updated_at = excluded.updated_at
	`, host, id.MACAddress, id.SerialNumber, id.DNA, toUnixMillis(id.Timestamp))
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	return nil
}

// Get returns the cached identity for host. ok is false when nothing is stored.
func (r *IdentityRepo) Get(ctx context.Context, host string) (id connectors.DeviceIdentity, ok bool, err error) {
	var updatedMs int64
	row := r.db.QueryRowContext(ctx, `
		SELECT host, mac, serial, dna, updated_at
		FROM device_identity
		WHERE host = ?
	`, strings.TrimSpace(host))
	err = row.Scan(&id.Host, &id.MACAddress, &id.SerialNumber, &id.DNA, &updatedMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return connectors.DeviceIdentity{}, false, nil
	case err != nil:
		return connectors.DeviceIdentity{}, false, fmt.Errorf("get identity: %w", err)
	}
	id.Timestamp = fromUnixMillis(updatedMs)
	id.Source = IdentitySourceCache

	return id, true, nil
}
