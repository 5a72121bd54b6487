package channel

import (
	"errors"
	"sort"
	"testing"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	m := &MockAdapter{ChannelName: "telegram"}

	if err := r.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := r.Adapter("telegram")
	if !ok {
		t.Fatal("Adapter returned false for registered channel")
	}
	if got != m {
		t.Error("Adapter returned wrong instance")
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(&MockAdapter{ChannelName: "term"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := r.Register(&MockAdapter{ChannelName: "term"})
	if !errors.Is(err, ErrDuplicateChannel) {
		t.Errorf("second Register = %v, want ErrDuplicateChannel", err)
	}
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	// The mock's Name() defaults to "mock" when ChannelName is empty, so a
	// genuinely nameless adapter needs an explicit override.
	err := r.Register(&nameless{})
	if !errors.Is(err, ErrEmptyChannelName) {
		t.Errorf("Register(nameless) = %v, want ErrEmptyChannelName", err)
	}
}

type nameless struct{ MockAdapter }

func (*nameless) Name() string { return "" }

func TestRegistry_LookupMissing(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if _, ok := r.Adapter("nonexistent"); ok {
		t.Error("Adapter should return false for unknown channel")
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_ = r.Register(&MockAdapter{ChannelName: "wsops"})
	_ = r.Register(&MockAdapter{ChannelName: "telegram"})

	names := r.Names()
	sort.Strings(names)
	want := []string{"telegram", "wsops"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
}
