// Package testutil provides a scriptable fake provider and small helpers
// shared by the test suites.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/tracegridgo/internal/coordinator"
	"github.com/vk/tracegridgo/internal/network"
)

// ElementID is the identifier SampleLocator points at.
var ElementID = uuid.MustParse("6f1f8a2e-3c4d-4b5a-9e8f-0123456789ab")

// SampleDefinition returns a small definition with two sources, matching
// SampleLocator.
func SampleDefinition() *network.Definition {
	return &network.Definition{
		Name: "Naperville Gas",
		Sources: []network.Source{
			{
				Name: "Gas Device",
				Groups: []network.Group{
					{Name: "Meter", Types: []network.EntityType{{Name: "Customer Meter"}}},
					{Name: "Valve", Types: []network.EntityType{{Name: "Isolation Valve"}}},
				},
			},
			{
				Name:   "Gas Line",
				Groups: []network.Group{{Name: "Distribution Pipe", Types: []network.EntityType{{Name: "Plastic PE"}}}},
			},
		},
		Base: map[string]any{"domainNetwork": "Pipeline"},
	}
}

// SampleLocator resolves fully against SampleDefinition.
func SampleLocator() network.Locator {
	return network.Locator{
		Source:     "Gas Device",
		Group:      "Meter",
		Type:       "Customer Meter",
		Identifier: ElementID,
	}
}

// FakeProvider is a scriptable coordinator.Provider. Every operation has a
// happy-path default against SampleDefinition and an overridable function
// field; all calls are recorded in order.
type FakeProvider struct {
	mu    sync.Mutex
	calls []string

	LoadRootFn       func(ctx context.Context) (coordinator.RootHandle, error)
	LoadDefinitionFn func(ctx context.Context, root coordinator.RootHandle) (*network.Definition, error)
	MakeElementFn    func(typ network.EntityType, id uuid.UUID) (any, error)
	TraceFn          func(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error)
	FetchGroupFn     func(ctx context.Context, key string, items []network.ResultItem) ([]network.ResolvedItem, error)
}

// NewFakeProvider returns a provider whose defaults complete the whole load
// chain and return an empty trace.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// Calls returns a copy of the recorded call names in invocation order.
func (f *FakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeProvider) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *FakeProvider) LoadRoot(ctx context.Context) (coordinator.RootHandle, error) {
	f.record("LoadRoot")
	if f.LoadRootFn != nil {
		return f.LoadRootFn(ctx)
	}
	return "root-handle", nil
}

func (f *FakeProvider) LoadDefinition(ctx context.Context, root coordinator.RootHandle) (*network.Definition, error) {
	f.record("LoadDefinition")
	if f.LoadDefinitionFn != nil {
		return f.LoadDefinitionFn(ctx, root)
	}
	return SampleDefinition(), nil
}

func (f *FakeProvider) MakeElement(typ network.EntityType, id uuid.UUID) (any, error) {
	f.record("MakeElement")
	if f.MakeElementFn != nil {
		return f.MakeElementFn(typ, id)
	}
	return fmt.Sprintf("%s/%s", typ.Name, id), nil
}

func (f *FakeProvider) Trace(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error) {
	f.record("Trace")
	if f.TraceFn != nil {
		return f.TraceFn(ctx, start, cfg)
	}
	return nil, nil
}

func (f *FakeProvider) FetchGroup(ctx context.Context, key string, items []network.ResultItem) ([]network.ResolvedItem, error) {
	f.record("FetchGroup:" + key)
	if f.FetchGroupFn != nil {
		return f.FetchGroupFn(ctx, key, items)
	}
	resolved := make([]network.ResolvedItem, len(items))
	for i, item := range items {
		resolved[i] = network.ResolvedItem{ID: fmt.Sprintf("%s-%d", key, i), Attributes: map[string]any{"ref": item.Ref}}
	}
	return resolved, nil
}

// WaitFor polls cond every millisecond until it holds or the timeout expires.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
