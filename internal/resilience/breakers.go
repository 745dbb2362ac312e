package resilience

import "sync"

// Set lazily maintains one breaker per webhook endpoint so that a flapping
// receiver only affects deliveries aimed at it.
type Set struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	factory  func(endpoint string) *Breaker
}

// NewSet returns a registry that builds breakers with the provided factory.
// A nil factory falls back to NewBreaker defaults.
func NewSet(factory func(endpoint string) *Breaker) *Set {
	if factory == nil {
		factory = func(endpoint string) *Breaker {
			return NewBreaker(0, 0, 0).WithEndpoint(endpoint)
		}
	}
	return &Set{
		breakers: make(map[string]*Breaker),
		factory:  factory,
	}
}

// For returns the breaker guarding the endpoint, creating it on first use.
func (s *Set) For(endpoint string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[endpoint]; ok {
		return b
	}
	b := s.factory(endpoint)
	s.breakers[endpoint] = b
	return b
}
