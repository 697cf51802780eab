package resnet

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

// ModeKind selects which paths a forward pass evaluates.
type ModeKind int

// Forward modes.
const (
	ModeAll ModeKind = iota
	ModeRandom
	ModeSelected
)

// String returns "all", "random" or "selected".
func (k ModeKind) String() string {
	switch k {
	case ModeAll:
		return "all"
	case ModeRandom:
		return "random"
	case ModeSelected:
		return "selected"
	default:
		return "unknown"
	}
}

// PathSampler draws a path index uniformly from [0, n).
// *math/rand.Rand satisfies it.
type PathSampler interface {
	Intn(n int) int
}

// Mode is the path selection for one forward pass. Build it with All,
// Random, RandomFrom or Selected; the zero value is All.
type Mode struct {
	kind    ModeKind
	index   int
	sampler PathSampler
}

// All evaluates every path in index order.
func All() Mode {
	return Mode{kind: ModeAll}
}

// Random evaluates one path drawn by the model's own sampler.
func Random() Mode {
	return Mode{kind: ModeRandom}
}

// RandomFrom evaluates one path drawn by sampler. Concurrent callers can
// pass a goroutine-local sampler to avoid sharing the model's.
func RandomFrom(sampler PathSampler) Mode {
	return Mode{kind: ModeRandom, sampler: sampler}
}

// Selected evaluates path i.
func Selected(i int) Mode {
	return Mode{kind: ModeSelected, index: i}
}

// Kind returns the mode kind.
func (m Mode) Kind() ModeKind {
	return m.kind
}

// Index returns the selected path; meaningful for ModeSelected only.
func (m Mode) Index() int {
	return m.index
}

// String returns "all", "random" or the selected index.
func (m Mode) String() string {
	if m.kind == ModeSelected {
		return strconv.Itoa(m.index)
	}
	return m.kind.String()
}

// ParseMode parses "all", "random" or a non-negative path index.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "all":
		return All(), nil
	case "random":
		return Random(), nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 0 {
		return Mode{}, fmt.Errorf("%w: %q (want all, random or a path index)", ErrInvalidMode, s)
	}
	return Selected(i), nil
}

// lockedSampler serializes draws from a shared *rand.Rand.
type lockedSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedSampler(seed int64) *lockedSampler {
	return &lockedSampler{rng: rand.New(rand.NewSource(seed))} //nolint:gosec // G404: path sampling, not security
}

func (s *lockedSampler) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
