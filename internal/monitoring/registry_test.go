package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pingmon/internal/database"
)

func TestValidAddress(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"10.0.0.1", true},
		{"0.0.0.0", true},
		{"255.255.255.255", true},
		{"192.168.001.010", true},
		{"999.1.1.1", false},
		{"256.0.0.1", false},
		{"1.2.3", false},
		{"1.2.3.4.5", false},
		{"a.b.c.d", false},
		{"1..2.3", false},
		{"-1.2.3.4", false},
		{"+1.2.3.4", false},
		{"1.2.3.4 ", false},
		{"", false},
		{"::1", false},
	}

	for _, tc := range cases {
		if got := ValidAddress(tc.addr); got != tc.want {
			t.Errorf("ValidAddress(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestRegistryAdd(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)

	d, err := r.Add(context.Background(), "  Router  ", "10.0.0.1")
	if err != nil {
		t.Fatalf("Add err=%v", err)
	}
	if d.Name != "Router" {
		t.Fatalf("name not trimmed: %q", d.Name)
	}
	if d.ID == "" {
		t.Fatalf("expected an id")
	}

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 device, got %d", len(list))
	}
	got := list[0]
	if got.Status != database.StatusUnknown || got.LastCheck != nil || got.LastStatusChange != nil {
		t.Fatalf("new device not pristine: %+v", got)
	}
	if store.saveCount() != 1 {
		t.Fatalf("expected 1 save after add, got %d", store.saveCount())
	}
}

func TestRegistryAddValidation(t *testing.T) {
	r := NewRegistry(&fakeStore{})

	if _, err := r.Add(context.Background(), "bad", "999.1.1.1"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := r.Add(context.Background(), "", "10.0.0.1"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := r.Add(context.Background(), "   ", "10.0.0.1"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName for blank name, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("rejected adds must not change the registry")
	}
}

func TestRegistryAllowsDuplicateAddresses(t *testing.T) {
	r := NewRegistry(nil)
	for i := 0; i < 2; i++ {
		if _, err := r.Add(context.Background(), fmt.Sprintf("dup%d", i), "10.0.0.1"); err != nil {
			t.Fatalf("Add err=%v", err)
		}
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 devices, got %d", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(store)
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c"} {
		if _, err := r.Add(ctx, n, "10.0.0.1"); err != nil {
			t.Fatalf("Add err=%v", err)
		}
	}
	saves := store.saveCount()

	if _, err := r.Remove(ctx, 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := r.Remove(ctx, -1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for -1, got %v", err)
	}
	if r.Len() != 3 || store.saveCount() != saves {
		t.Fatalf("failed remove changed state")
	}

	removed, err := r.Remove(ctx, 1)
	if err != nil {
		t.Fatalf("Remove err=%v", err)
	}
	if removed.Name != "b" {
		t.Fatalf("removed %q, want b", removed.Name)
	}

	list := r.List()
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "c" {
		t.Fatalf("unexpected order after remove: %+v", list)
	}
	if store.saveCount() != saves+1 {
		t.Fatalf("expected a save after remove")
	}
}

func TestRegistryUpdateTransitionsOnly(t *testing.T) {
	r := NewRegistry(nil)
	d, _ := r.Add(context.Background(), "host", "10.0.0.1")

	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(30 * time.Second)

	got, changed, err := r.Update(0, d.ID, database.StatusOnline, t1)
	if err != nil || !changed {
		t.Fatalf("first update: changed=%v err=%v", changed, err)
	}
	if !got.LastStatusChange.Equal(t1) || !got.LastCheck.Equal(t1) {
		t.Fatalf("timestamps after first update: %+v", got)
	}

	got, changed, err = r.Update(0, d.ID, database.StatusOnline, t2)
	if err != nil || changed {
		t.Fatalf("repeat update: changed=%v err=%v", changed, err)
	}
	if !got.LastStatusChange.Equal(t1) {
		t.Fatalf("LastStatusChange moved on same status")
	}
	if !got.LastCheck.Equal(t2) {
		t.Fatalf("LastCheck did not advance")
	}
}

func TestRegistryUpdateAfterConcurrentRemove(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	a, _ := r.Add(ctx, "a", "10.0.0.1")
	b, _ := r.Add(ctx, "b", "10.0.0.2")

	// Snapshot index of b was 1; a is removed before the result lands.
	if _, err := r.Remove(ctx, 0); err != nil {
		t.Fatalf("Remove err=%v", err)
	}

	got, _, err := r.Update(1, b.ID, database.StatusOffline, time.Now())
	if err != nil {
		t.Fatalf("Update err=%v", err)
	}
	if got.Name != "b" {
		t.Fatalf("updated %q, want b", got.Name)
	}

	if _, _, err := r.Update(0, a.ID, database.StatusOnline, time.Now()); !errors.Is(err, ErrDeviceGone) {
		t.Fatalf("expected ErrDeviceGone, got %v", err)
	}
	if r.List()[0].Status != database.StatusOffline {
		t.Fatalf("b was overwritten by a stale result")
	}
}

func TestRegistryListIsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	d, _ := r.Add(context.Background(), "host", "10.0.0.1")

	list := r.List()
	list[0].Name = "mutated"

	r.Update(0, d.ID, database.StatusOnline, time.Now())
	if list[0].Status != database.StatusUnknown {
		t.Fatalf("snapshot observed a later update")
	}
	if r.List()[0].Name != "host" {
		t.Fatalf("registry observed a snapshot mutation")
	}
}

func TestRegistryLoadError(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("corrupt")}
	r := NewRegistry(store)

	if err := r.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if r.Len() != 0 {
		t.Fatalf("registry should be empty after failed load")
	}
}

func TestRegistrySaveHook(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("read-only")}
	r := NewRegistry(store)

	var got []error
	r.OnSave(func(err error) { got = append(got, err) })

	if _, err := r.Add(context.Background(), "host", "10.0.0.1"); err != nil {
		t.Fatalf("save failure must not fail Add: %v", err)
	}
	if len(got) != 1 || got[0] == nil {
		t.Fatalf("hook not told about failure: %v", got)
	}
	if r.Len() != 1 {
		t.Fatalf("device should stay registered in memory")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(&fakeStore{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := r.Add(ctx, fmt.Sprintf("d%d", i), "10.0.0.1")
			if err != nil {
				t.Errorf("Add err=%v", err)
				return
			}
			for j := 0; j < 20; j++ {
				r.List()
				r.Update(0, d.ID, database.StatusOnline, time.Now())
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 8 {
		t.Fatalf("expected 8 devices, got %d", r.Len())
	}
}
