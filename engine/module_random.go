package engine

import (
	"context"
	"math/rand/v2"
	"sync"
)

// randomSource is one engine's generator. Seeding it affects only the
// engine that installed the module.
type randomSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func randomModule() map[string]any {
	r := &randomSource{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}

	return map[string]any{
		"seed":    Func(r.seed),
		"random":  Func(r.random),
		"uniform": Func(r.uniform),
		"randint": Func(r.randint),
		"choice":  Func(r.choice),
		"shuffle": Func(r.shuffle),
		"sample":  Func(r.sample),
	}
}

func (r *randomSource) seed(_ context.Context, a Args) (any, error) {
	var n int64
	if err := a.Unpack("seed", "n", &n); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.rng = rand.New(rand.NewPCG(uint64(n), uint64(n)^0x9e3779b97f4a7c15))
	r.mu.Unlock()

	return nil, nil
}

func (r *randomSource) random(_ context.Context, a Args) (any, error) {
	if err := a.Unpack("random"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rng.Float64(), nil
}

func (r *randomSource) uniform(_ context.Context, a Args) (any, error) {
	var lo, hi float64
	if err := a.Unpack("uniform", "a", &lo, "b", &hi); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return lo + (hi-lo)*r.rng.Float64(), nil
}

// randint returns an int in [lo, hi].
func (r *randomSource) randint(_ context.Context, a Args) (any, error) {
	var lo, hi int64
	if err := a.Unpack("randint", "a", &lo, "b", &hi); err != nil {
		return nil, err
	}

	if hi < lo {
		return nil, Errorf(CategoryValue, "empty range in randint(%d, %d)", lo, hi)
	}

	span := uint64(hi-lo) + 1

	r.mu.Lock()
	defer r.mu.Unlock()

	if span == 0 {
		return int64(r.rng.Uint64()), nil
	}

	return lo + int64(r.rng.Uint64N(span)), nil
}

func (r *randomSource) choice(_ context.Context, a Args) (any, error) {
	var items []any
	if err := a.Unpack("choice", "seq", &items); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, NewError(CategoryIndex, "cannot choose from an empty sequence")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return items[r.rng.IntN(len(items))], nil
}

// shuffle permutes a list in place.
func (r *randomSource) shuffle(_ context.Context, a Args) (any, error) {
	var l *List
	if err := a.Unpack("shuffle", "x", &l); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return nil, l.update(func(items []any) ([]any, error) {
		r.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

		return items, nil
	})
}

// sample returns k distinct elements chosen from the population.
func (r *randomSource) sample(_ context.Context, a Args) (any, error) {
	var (
		items []any
		k     int
	)

	if err := a.Unpack("sample", "population", &items, "k", &k); err != nil {
		return nil, err
	}

	if k < 0 || k > len(items) {
		return nil, NewError(CategoryValue, "sample larger than population or is negative")
	}

	pool := append([]any(nil), items...)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range k {
		j := i + r.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return NewList(pool[:k]...), nil
}
