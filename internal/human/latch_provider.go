package human

import "context"

// LatchProvider adapts a Latch into a Provider: the first call lazily
// initializes the underlying provider (and every concurrent first call
// blocks on that same initialization); later calls reuse the cached
// provider or its sticky failure.
type LatchProvider struct {
	latch *Latch
	init  func() (Provider, error)
}

// NewLatchProvider builds a LatchProvider. init is called at most once.
func NewLatchProvider(init func() (Provider, error)) *LatchProvider {
	return &LatchProvider{latch: &Latch{}, init: init}
}

// Candidates implements Provider.
func (l *LatchProvider) Candidates(ctx context.Context, fen string, elo int) ([]Candidate, error) {
	provider, err := l.latch.Get(l.init)
	if err != nil {
		return nil, err
	}
	return provider.Candidates(ctx, fen, elo)
}
