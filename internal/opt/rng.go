package opt

import (
	"math/rand"
	"sync"
	"time"
)

// Seeder hands out independent generators derived from one base seed, so a
// seeded engine replays the same sequence of calls while no *rand.Rand is
// ever shared between goroutines.
type Seeder struct {
	mu   sync.Mutex
	base *rand.Rand
}

// NewSeeder returns a Seeder for seed. Zero seeds from the clock.
func NewSeeder(seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{base: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh generator for one call.
func (s *Seeder) Next() *rand.Rand {
	s.mu.Lock()
	v := s.base.Int63()
	s.mu.Unlock()
	return rand.New(rand.NewSource(v))
}

// NewRand is a seeded generator for callers that pin a seed per request.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
