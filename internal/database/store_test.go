package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleDevices() []Device {
	checked := time.Date(2024, 5, 1, 9, 30, 0, 123456000, time.UTC)
	changed := checked.Add(-time.Hour)
	return []Device{
		{ID: "id-1", Name: "Router", Address: "192.168.1.1", Status: StatusOnline, LastCheck: &checked, LastStatusChange: &changed},
		{ID: "id-2", Name: "NAS", Address: "192.168.1.20", Status: StatusUnknown},
		{ID: "id-3", Name: "Printer", Address: "192.168.1.30", Status: StatusOffline, LastCheck: &checked, LastStatusChange: &checked},
	}
}

func assertDevicesEqual(t *testing.T, got, want []Device) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d devices, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Name != w.Name || g.Address != w.Address || g.Status != w.Status {
			t.Fatalf("device %d: got %+v, want %+v", i, g, w)
		}
		assertTimeEqual(t, "last_check", g.LastCheck, w.LastCheck)
		assertTimeEqual(t, "last_status_change", g.LastStatusChange, w.LastStatusChange)
	}
}

func assertTimeEqual(t *testing.T, field string, got, want *time.Time) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("%s: got %v, want %v", field, got, want)
	}
	if got != nil && !got.Equal(*want) {
		t.Fatalf("%s: got %s, want %s", field, got, want)
	}
}

func TestStores(t *testing.T) {
	opens := map[string]func(t *testing.T) Store{
		"boltdb": func(t *testing.T) Store {
			s, err := Open(Options{Type: "boltdb", Path: filepath.Join(t.TempDir(), "data", "pingmon.db")})
			if err != nil {
				t.Fatalf("open err=%v", err)
			}
			return s
		},
		"json": func(t *testing.T) Store {
			s, err := Open(Options{Type: "json", Path: filepath.Join(t.TempDir(), "devices.json")})
			if err != nil {
				t.Fatalf("open err=%v", err)
			}
			return s
		},
	}
	if dsn := os.Getenv("PINGMON_TEST_POSTGRES_DSN"); dsn != "" {
		opens["postgres"] = func(t *testing.T) Store {
			s, err := Open(Options{Type: "postgres", DSN: dsn})
			if err != nil {
				t.Fatalf("open err=%v", err)
			}
			return s
		}
	}

	for name, open := range opens {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			t.Run("empty", func(t *testing.T) {
				if err := s.Save(ctx, nil); err != nil {
					t.Fatalf("Save err=%v", err)
				}
				devices, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("Load err=%v", err)
				}
				if len(devices) != 0 {
					t.Fatalf("expected no devices, got %d", len(devices))
				}
			})

			t.Run("round trip keeps order", func(t *testing.T) {
				want := sampleDevices()
				if err := s.Save(ctx, want); err != nil {
					t.Fatalf("Save err=%v", err)
				}
				got, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("Load err=%v", err)
				}
				assertDevicesEqual(t, got, want)
			})

			t.Run("save replaces previous list", func(t *testing.T) {
				want := sampleDevices()[1:2]
				if err := s.Save(ctx, want); err != nil {
					t.Fatalf("Save err=%v", err)
				}
				got, err := s.Load(ctx)
				if err != nil {
					t.Fatalf("Load err=%v", err)
				}
				assertDevicesEqual(t, got, want)
			})
		})
	}
}

func TestOpenUnknownType(t *testing.T) {
	if _, err := Open(Options{Type: "sqlite"}); err == nil {
		t.Fatalf("expected error for unknown store type")
	}
}

func TestBoltStoreSavedAt(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "pingmon.db"))
	if err != nil {
		t.Fatalf("open err=%v", err)
	}
	defer s.Close()

	if at, err := s.SavedAt(); err != nil || !at.IsZero() {
		t.Fatalf("fresh store SavedAt=%v err=%v", at, err)
	}

	before := time.Now().Add(-time.Second)
	if err := s.Save(context.Background(), sampleDevices()); err != nil {
		t.Fatalf("Save err=%v", err)
	}
	at, err := s.SavedAt()
	if err != nil {
		t.Fatalf("SavedAt err=%v", err)
	}
	if at.Before(before) {
		t.Fatalf("SavedAt=%s not updated", at)
	}
}

func TestBoltStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pingmon.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("open err=%v", err)
	}
	if err := s.Save(context.Background(), sampleDevices()); err != nil {
		t.Fatalf("Save err=%v", err)
	}
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen err=%v", err)
	}
	defer s.Close()

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	assertDevicesEqual(t, got, sampleDevices())
}
