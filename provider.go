package goSession

import "sync"

// Provider lazily builds one Manager and hands the same instance to every
// caller. The build function runs at most once, even under concurrent Get;
// its error is cached too.
type Provider struct {
	get func() (*Manager, error)
}

// NewProvider wraps build, typically a closure over New()...Build().
func NewProvider(build func() (*Manager, error)) *Provider {
	return &Provider{get: sync.OnceValues(build)}
}

// Get returns the shared Manager, building it on first use.
func (p *Provider) Get() (*Manager, error) {
	return p.get()
}

// MustGet is Get for process start-up code; it panics on a build error.
func (p *Provider) MustGet() *Manager {
	m, err := p.get()
	if err != nil {
		panic("goSession: build manager: " + err.Error())
	}
	return m
}
