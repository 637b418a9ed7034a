package publisher

import (
	"context"
	"fmt"
	"sync"

	"github.com/orgball2608/content-publisher/internal/domain"
)

// Registry maps platform identifiers to their publisher.
type Registry struct {
	mu         sync.RWMutex
	publishers map[domain.Platform]Publisher
}

func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[domain.Platform]Publisher, len(publishers))}
	for _, p := range publishers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the publisher for p.Platform().
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Platform()] = p
}

// Lookup never returns nil: unknown platforms get a stub that fails with
// KindNotImplemented.
func (r *Registry) Lookup(platform domain.Platform) Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.publishers[platform]; ok {
		return p
	}
	return NotImplemented(platform)
}

func (r *Registry) Platforms() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	platforms := make([]domain.Platform, 0, len(r.publishers))
	for p := range r.publishers {
		platforms = append(platforms, p)
	}
	return platforms
}

type notImplemented struct {
	platform domain.Platform
}

// NotImplemented returns a publisher for a platform that has no integration yet.
func NotImplemented(platform domain.Platform) Publisher {
	return notImplemented{platform: platform}
}

// Implemented reports whether p is a real integration rather than a stub.
func Implemented(p Publisher) bool {
	_, stub := p.(notImplemented)
	return !stub
}

func (n notImplemented) Platform() domain.Platform {
	return n.platform
}

func (n notImplemented) ValidateCredential(context.Context, domain.ConnectedAccount) (bool, error) {
	return false, n.err()
}

func (n notImplemented) Publish(context.Context, domain.ConnectedAccount, string, Payload) (Outcome, error) {
	return Outcome{}, n.err()
}

func (n notImplemented) err() error {
	return NewError(n.platform, KindNotImplemented, fmt.Errorf("publishing to %s is not implemented", n.platform))
}
