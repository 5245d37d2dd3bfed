package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vango-dev/rxstore/pkg/backend"
	"github.com/vango-dev/rxstore/pkg/idb"
	"github.com/vango-dev/rxstore/pkg/localstorage"
)

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func openTable(t *testing.T, d *Driver, database, table string) backend.Table {
	t.Helper()
	tbl, err := d.OpenTable(context.Background(), database, table)
	if err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}
	return tbl
}

func TestTable_SetGet(t *testing.T) {
	d := newTestDriver(t)
	tbl := openTable(t, d, "db", "t")
	ctx := context.Background()

	if err := tbl.Set(ctx, "k", []byte(`"v1"`)); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set(ctx, "k", []byte(`"v2"`)); err != nil {
		t.Fatal(err)
	}

	v, found, err := tbl.Get(ctx, "k")
	if err != nil || !found || string(v) != `"v2"` {
		t.Errorf("Get = %q, %v, %v", v, found, err)
	}

	_, found, err = tbl.Get(ctx, "missing")
	if err != nil || found {
		t.Errorf("Get missing = %v, %v", found, err)
	}
}

func TestTable_Isolation(t *testing.T) {
	d := newTestDriver(t)
	a := openTable(t, d, "db", "a")
	b := openTable(t, d, "db", "b")
	other := openTable(t, d, "other", "a")
	ctx := context.Background()

	_ = a.Set(ctx, "x", []byte("1"))
	_ = a.Set(ctx, "y", []byte("2"))
	_ = b.Set(ctx, "x", []byte("3"))
	_ = other.Set(ctx, "x", []byte("4"))

	keys, err := a.Keys(ctx)
	if err != nil || len(keys) != 2 || keys[0] != "x" || keys[1] != "y" {
		t.Fatalf("Keys = %v, %v", keys, err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if keys, _ := a.Keys(ctx); len(keys) != 0 {
		t.Errorf("Keys after Clear = %v", keys)
	}
	for _, tbl := range []backend.Table{b, other} {
		if _, found, _ := tbl.Get(ctx, "x"); !found {
			t.Error("Clear removed a key of another table")
		}
	}
}

func TestTable_Remove(t *testing.T) {
	d := newTestDriver(t)
	tbl := openTable(t, d, "db", "t")
	ctx := context.Background()

	_ = tbl.Set(ctx, "k", []byte("1"))
	if err := tbl.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if _, found, _ := tbl.Get(ctx, "k"); found {
		t.Error("key still present after Remove")
	}
}

func TestTable_Closed(t *testing.T) {
	d := newTestDriver(t)
	tbl := openTable(t, d, "db", "t")
	ctx := context.Background()

	_ = tbl.Close()
	if err := tbl.Set(ctx, "k", []byte("1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set on closed table = %v", err)
	}

	fresh := openTable(t, d, "db", "t")
	if err := fresh.Set(ctx, "k", []byte("1")); err != nil {
		t.Errorf("Set on a new handle failed: %v", err)
	}

	_ = d.Close()
	if _, err := d.OpenTable(ctx, "db", "t"); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenTable on closed driver = %v", err)
	}
	if _, _, err := fresh.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after driver Close = %v", err)
	}
}

func TestDriver_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.db")
	ctx := context.Background()

	d, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	tbl := openTable(t, d, "db", "t")
	if err := tbl.Set(ctx, "k", []byte("42")); err != nil {
		t.Fatal(err)
	}
	view := d.Area()
	if err := view.SetItem("flat", "1"); err != nil {
		t.Fatal(err)
	}
	d.Close()

	d, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	v, found, err := openTable(t, d, "db", "t").Get(ctx, "k")
	if err != nil || !found || string(v) != "42" {
		t.Errorf("Get after reopen = %q, %v, %v", v, found, err)
	}
	if v, ok := d.Area().GetItem("flat"); !ok || v != "1" {
		t.Errorf("GetItem after reopen = %q, %v", v, ok)
	}
}

func TestArea_Events(t *testing.T) {
	d := newTestDriver(t)
	writer := d.Area()
	reader := d.Area()

	var got []backend.StorageEvent
	stop := reader.Watch(func(ev backend.StorageEvent) { got = append(got, ev) })
	var own int
	writer.Watch(func(backend.StorageEvent) { own++ })

	if err := writer.SetItem("k", "1"); err != nil {
		t.Fatal(err)
	}
	if err := writer.SetItem("k", "2"); err != nil {
		t.Fatal(err)
	}
	writer.RemoveItem("k")
	writer.RemoveItem("k")

	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].OldValue != nil || *got[0].NewValue != "1" {
		t.Errorf("first event = %+v", got[0])
	}
	if *got[1].OldValue != "1" || *got[1].NewValue != "2" {
		t.Errorf("second event = %+v", got[1])
	}
	if got[2].NewValue != nil || *got[2].OldValue != "2" {
		t.Errorf("removal event = %+v", got[2])
	}
	if own != 0 {
		t.Errorf("writer received %d of its own events", own)
	}

	stop()
	_ = writer.SetItem("k", "3")
	if len(got) != 3 {
		t.Error("event delivered after stop")
	}
}

func TestArea_Keys(t *testing.T) {
	d := newTestDriver(t)
	view := d.Area()

	_ = view.SetItem("b", "2")
	_ = view.SetItem("a", "1")

	keys := view.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v", keys)
	}
}

func TestAsyncStoreOverSQLite(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	s := idb.New("items", "app", idb.WithDriver(d))
	defer s.Dispose()

	if err := s.Set(ctx, "k", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, found, err := s.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get = %v, %v, %v", v, found, err)
	}
	if m, ok := v.(map[string]any); !ok || m["n"] != float64(1) {
		t.Fatalf("Get = %#v", v)
	}

	keys, err := s.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != "k" {
		t.Fatalf("Keys = %v, %v", keys, err)
	}
}

func TestSyncStoreOverSQLite(t *testing.T) {
	d := newTestDriver(t)
	ctx := context.Background()

	writer := localstorage.New("t", "app", localstorage.WithArea(d.Area()))
	reader := localstorage.New("t", "app", localstorage.WithArea(d.Area()))
	defer writer.Dispose()
	defer reader.Dispose()

	cell := reader.Signal("theme")
	if err := writer.Set(ctx, "theme", "dark"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for cell.Get() != "dark" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if cell.Get() != "dark" {
		t.Fatalf("reader cell = %v, want dark", cell.Get())
	}
}
