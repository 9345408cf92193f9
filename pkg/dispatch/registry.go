// Package dispatch turns raw updates into handler invocations: it classifies
// each update to a string key, resolves the key in a registry and runs the
// handler the registry produces.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhaopengme/statsbot/pkg/botapi"
	"github.com/zhaopengme/statsbot/pkg/ingest"
)

var ErrDuplicateKey = errors.New("duplicate handler key")

// Handler processes exactly one update.
type Handler interface {
	Handle(ctx context.Context) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context) error

func (f HandlerFunc) Handle(ctx context.Context) error { return f(ctx) }

// Factory builds a fresh handler bound to one update.
type Factory func(env *Env, update botapi.Update) Handler

// Env is what every handler gets besides its update.
type Env struct {
	Notifier botapi.Notifier
	Ingest   ingest.Enqueuer
	Registry *Registry
}

// Registration binds a key to a factory. A non-empty Description puts the
// key in the published command menu.
type Registration struct {
	Key         string
	Description string
	Factory     Factory
}

type RegistryBuilder struct {
	regs []Registration
	seen map[string]struct{}
	errs []error
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{seen: make(map[string]struct{})}
}

func (b *RegistryBuilder) Register(reg Registration) *RegistryBuilder {
	switch {
	case reg.Key == "":
		b.errs = append(b.errs, errors.New("handler key is empty"))
	case reg.Factory == nil:
		b.errs = append(b.errs, fmt.Errorf("handler %q has no factory", reg.Key))
	default:
		if _, dup := b.seen[reg.Key]; dup {
			b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateKey, reg.Key))
			return b
		}
		b.seen[reg.Key] = struct{}{}
		b.regs = append(b.regs, reg)
	}
	return b
}

func (b *RegistryBuilder) Build() (*Registry, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	r := &Registry{
		byKey: make(map[string]Registration, len(b.regs)),
		order: append([]Registration(nil), b.regs...),
	}
	for _, reg := range b.regs {
		r.byKey[reg.Key] = reg
	}
	return r, nil
}

func (b *RegistryBuilder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// Registry is immutable once built and safe for concurrent reads.
type Registry struct {
	byKey map[string]Registration
	order []Registration
}

func (r *Registry) Resolve(key string) (Factory, bool) {
	reg, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return reg.Factory, true
}

// Commands lists described keys in registration order.
func (r *Registry) Commands() []botapi.CommandInfo {
	var out []botapi.CommandInfo
	for _, reg := range r.order {
		if reg.Description == "" {
			continue
		}
		out = append(out, botapi.CommandInfo{Command: reg.Key, Description: reg.Description})
	}
	return out
}

func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.order))
	for _, reg := range r.order {
		keys = append(keys, reg.Key)
	}
	return keys
}
