package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vango-dev/rxstore/pkg/backend"
)

// Area returns a new execution context over the shared rxstore_area table.
// Changes made through one view are announced to the watchers of the other
// views of d.
func (d *Driver) Area() *AreaView {
	return &AreaView{driver: d, id: d.contexts.Add(1)}
}

// AreaView is the backend.Area of one execution context.
type AreaView struct {
	driver *Driver
	id     uint64
}

var _ backend.Area = (*AreaView)(nil)

// GetItem implements backend.Area. Query failures are logged and reported
// as a missing key.
func (v *AreaView) GetItem(key string) (string, bool) {
	value, ok, err := v.driver.areaGet(context.Background(), key)
	if err != nil {
		v.driver.logger.Error("area get", "key", key, "error", err)
		return "", false
	}
	return value, ok
}

// SetItem implements backend.Area.
func (v *AreaView) SetItem(key, value string) error {
	d := v.driver
	if d.closed.Load() {
		return ErrClosed
	}
	ctx := context.Background()

	d.areaMu.Lock()
	old, had, err := d.areaGet(ctx, key)
	if err == nil {
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO rxstore_area (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`,
			key, value, now(),
		)
	}
	d.areaMu.Unlock()
	if err != nil {
		return fmt.Errorf("area set %q: %w", key, err)
	}

	ev := backend.StorageEvent{Key: key, NewValue: &value}
	if had {
		ev.OldValue = &old
	}
	d.watchers.Emit(v.id, ev)
	return nil
}

// RemoveItem implements backend.Area. Failures are logged.
func (v *AreaView) RemoveItem(key string) {
	d := v.driver
	if d.closed.Load() {
		return
	}
	ctx := context.Background()

	d.areaMu.Lock()
	old, had, err := d.areaGet(ctx, key)
	if err == nil && had {
		_, err = d.db.ExecContext(ctx, "DELETE FROM rxstore_area WHERE key = ?", key)
	}
	d.areaMu.Unlock()
	if err != nil {
		d.logger.Error("area remove", "key", key, "error", err)
		return
	}
	if !had {
		return
	}
	d.watchers.Emit(v.id, backend.StorageEvent{Key: key, OldValue: &old})
}

// Keys implements backend.Area. Keys are sorted; failures are logged and
// yield no keys.
func (v *AreaView) Keys() []string {
	d := v.driver
	if d.closed.Load() {
		return nil
	}

	rows, err := d.db.Query("SELECT key FROM rxstore_area ORDER BY key")
	if err != nil {
		d.logger.Error("area keys", "error", err)
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			d.logger.Error("area keys", "error", err)
			return nil
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		d.logger.Error("area keys", "error", err)
	}
	return keys
}

// Watch implements backend.Area.
func (v *AreaView) Watch(fn func(backend.StorageEvent)) func() {
	return v.driver.watchers.Add(v.id, fn)
}

func (d *Driver) areaGet(ctx context.Context, key string) (string, bool, error) {
	if d.closed.Load() {
		return "", false, ErrClosed
	}
	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM rxstore_area WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
