package coordinator

import (
	"context"

	"github.com/google/uuid"

	"github.com/vk/tracegridgo/internal/network"
)

// RootHandle is the provider's opaque reference to a loaded root service
// (the geodatabase connection). The coordinator stores it and hands it back
// to the provider, nothing more.
type RootHandle any

// Provider is the external environment the coordinator drives. Every method
// that talks to the service is blocking and context-aware; implementations
// live in internal/provider.
type Provider interface {
	// LoadRoot loads the root service (credentialed connection).
	LoadRoot(ctx context.Context) (RootHandle, error)

	// LoadDefinition loads the network definition the root exposes.
	LoadDefinition(ctx context.Context, root RootHandle) (*network.Definition, error)

	// MakeElement resolves an entity handle for the given type and
	// identifier, or fails if no such entity exists.
	MakeElement(typ network.EntityType, id uuid.UUID) (any, error)

	// Trace runs the domain query from the starting element with the given
	// configuration.
	Trace(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error)

	// FetchGroup fetches the resolved features for one group of trace
	// results. Called once per matched group during the fan-out.
	FetchGroup(ctx context.Context, key string, items []network.ResultItem) ([]network.ResolvedItem, error)
}
