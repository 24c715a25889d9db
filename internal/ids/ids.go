// Package ids allocates temporary record identifiers for records the backend
// has not acknowledged yet.
package ids

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"sendme/internal/types"
)

type Allocator interface {
	New(kind types.Kind) string
}

// Prefix returns the namespace used for temporary ids of the given kind.
// Server ids never carry these prefixes.
func Prefix(kind types.Kind) string {
	switch kind {
	case types.KindText:
		return "text_"
	case types.KindImage:
		return "image_"
	default:
		return "file_"
	}
}

func IsTemporary(id string) bool {
	for _, kind := range []types.Kind{types.KindText, types.KindImage, types.KindFile} {
		if strings.HasPrefix(id, Prefix(kind)) {
			return true
		}
	}
	return false
}

type uuidAllocator struct {
	fallback atomic.Uint64
}

func NewAllocator() Allocator {
	return &uuidAllocator{}
}

func (a *uuidAllocator) New(kind types.Kind) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return Prefix(kind) + "local-" + strconv.FormatUint(a.fallback.Add(1), 10)
	}
	return Prefix(kind) + id.String()
}

// Sequence hands out predictable ids (text_1, file_2, ...) for tests and
// scripted sessions.
type Sequence struct {
	mu   sync.Mutex
	next uint64
}

func NewSequence() *Sequence {
	return &Sequence{}
}

func (s *Sequence) New(kind types.Kind) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return Prefix(kind) + strconv.FormatUint(s.next, 10)
}
