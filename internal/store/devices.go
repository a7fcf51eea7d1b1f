package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetDevice returns the pinned device row, or ErrNotFound. Exposed here so
// internal/registry can share this package's Querier/transaction plumbing
// rather than open a second handle to the same database.
func GetDevice(ctx context.Context, q Querier, memberID, deviceID string) (Device, error) {
	var d Device
	d.MemberID, d.DeviceID = memberID, deviceID
	err := q.QueryRowContext(ctx, `
		SELECT pubkey_sign, pubkey_agree, status, registered_at_ms
		FROM devices WHERE member_id = ? AND device_id = ?`, memberID, deviceID).
		Scan(&d.PubKeySign, &d.PubKeyAgree, &d.Status, &d.RegisteredAtMs)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrNotFound
	}
	if err != nil {
		return Device{}, fmt.Errorf("store: get device: %w", err)
	}
	return d, nil
}

// InsertDeviceIfAbsent pins a device's keys. Returns (inserted=true) if
// this call created the row; the registry uses this to distinguish a
// fresh pin from an existing one whose keys must then be compared.
func InsertDeviceIfAbsent(ctx context.Context, q Querier, d Device) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO devices (member_id, device_id, pubkey_sign, pubkey_agree, status, registered_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id, device_id) DO NOTHING`,
		d.MemberID, d.DeviceID, d.PubKeySign, d.PubKeyAgree, d.Status, d.RegisteredAtMs)
	if err != nil {
		return false, fmt.Errorf("store: insert device: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert device rows affected: %w", err)
	}
	return n > 0, nil
}

func RevokeDevice(ctx context.Context, q Querier, memberID, deviceID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE devices SET status = ? WHERE member_id = ? AND device_id = ?`,
		DeviceStatusRevoked, memberID, deviceID)
	if err != nil {
		return fmt.Errorf("store: revoke device: %w", err)
	}
	return nil
}
