package rxstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/rxstore/pkg/backend/memory"
	"github.com/vango-dev/rxstore/pkg/channel"
	"github.com/vango-dev/rxstore/pkg/idb"
	"github.com/vango-dev/rxstore/pkg/localstorage"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

type settings struct {
	Theme string `json:"theme"`
	Size  int    `json:"size"`
}

func TestAdaptersShareContract(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Storage{
		"indexed": NewIndexed("settings", "app", idb.WithDriver(memory.NewDriver())),
		"local":   NewLocal("settings", "app", localstorage.WithArea(memory.NewArea().Context())),
	}

	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			defer s.Dispose()

			want := settings{Theme: "dark", Size: 14}
			if err := s.Set(ctx, "prefs", want); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, found, err := GetAs[settings](ctx, s, "prefs")
			if err != nil || !found || got != want {
				t.Errorf("GetAs = %+v, %v, %v", got, found, err)
			}

			sig := s.Signal("prefs")
			waitFor(t, func() bool { return sig.Get() != nil })

			if err := s.Remove(ctx, "prefs"); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			waitFor(t, func() bool { return sig.Get() == nil })

			s.Dispose()
			_, _, err = s.Get(ctx, "prefs")
			if !errors.Is(err, ErrDisposed) {
				t.Errorf("Get after Dispose = %v, want ErrDisposed", err)
			}
		})
	}
}

func TestWritableSignalAcrossStores(t *testing.T) {
	driver := memory.NewDriver()
	hub := channel.NewHub()

	a := NewIndexed("settings", "app", idb.WithDriver(driver), idb.WithBroker(hub))
	b := NewIndexed("settings", "app", idb.WithDriver(driver), idb.WithBroker(hub))
	defer a.Dispose()
	defer b.Dispose()
	<-a.Ready()
	<-b.Ready()

	theme := a.WritableSignal("theme", WithInitialValue("light"))
	mirror := b.Signal("theme")

	theme.Set("dark")
	waitFor(t, func() bool { return mirror.Get() == "dark" })

	v, found, err := b.Get(context.Background(), "theme")
	if err != nil || !found || v != "dark" {
		t.Errorf("Get = %v, %v, %v", v, found, err)
	}
}
