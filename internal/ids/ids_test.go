package ids

import (
	"strings"
	"testing"

	"sendme/internal/types"
)

func TestAllocatorPrefixesByKind(t *testing.T) {
	alloc := NewAllocator()
	if id := alloc.New(types.KindText); !strings.HasPrefix(id, "text_") {
		t.Fatalf("unexpected text id: %q", id)
	}
	if id := alloc.New(types.KindImage); !strings.HasPrefix(id, "image_") {
		t.Fatalf("unexpected image id: %q", id)
	}
	if id := alloc.New(types.KindFile); !strings.HasPrefix(id, "file_") {
		t.Fatalf("unexpected file id: %q", id)
	}
}

func TestAllocatorUnique(t *testing.T) {
	alloc := NewAllocator()
	seen := map[string]struct{}{}
	for i := 0; i < 1000; i++ {
		id := alloc.New(types.KindFile)
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIsTemporary(t *testing.T) {
	if !IsTemporary("text_abc") || !IsTemporary("image_1") || !IsTemporary("file_1") {
		t.Fatalf("expected temporary ids")
	}
	if IsTemporary("5f0c6e7a-0000-4000-8000-000000000000") || IsTemporary("42") {
		t.Fatalf("server ids must not look temporary")
	}
}

func TestSequence(t *testing.T) {
	seq := NewSequence()
	if got := seq.New(types.KindText); got != "text_1" {
		t.Fatalf("unexpected first id: %q", got)
	}
	if got := seq.New(types.KindFile); got != "file_2" {
		t.Fatalf("unexpected second id: %q", got)
	}
}
