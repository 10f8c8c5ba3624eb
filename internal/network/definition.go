// Package network models the utility-network metadata exposed by a loaded
// geodatabase service: the source → group → type lookup chain used to resolve
// a starting element, the trace configuration derived from the definition, and
// the grouping of trace results ahead of per-group feature fetches.
package network

import "github.com/google/uuid"

// Definition is the network metadata obtained from a loaded root service. It
// is immutable after load; the coordinator and the query step share it
// read-only.
type Definition struct {
	// Name is the network's display name as reported by the service.
	Name string
	// Sources are the network sources (device, line, junction classes)
	// available for lookups.
	Sources []Source
	// Base is the definition-supplied base trace configuration, treated as an
	// opaque payload and copied into every derived Configuration.
	Base map[string]any
}

// Source is one network source within a definition.
type Source struct {
	Name   string
	Groups []Group
}

// Group is one asset group within a source.
type Group struct {
	Name  string
	Types []EntityType
}

// EntityType is one asset type within a group.
type EntityType struct {
	Name string
}

// Locator names the lookup chain for a starting element: a source, a group
// within it, a type within that, and the identifier of the concrete entity.
type Locator struct {
	Source     string
	Group      string
	Type       string
	Identifier uuid.UUID
}

// Element is a fully resolved starting entity. Handle is the provider's
// opaque reference for the entity and is read-only after resolution.
type Element struct {
	Source     string
	Group      string
	Type       string
	Identifier uuid.UUID
	Handle     any
}

// LookupSource returns the named source, or false if the definition has none
// by that name.
func (d *Definition) LookupSource(name string) (Source, bool) {
	for _, s := range d.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// LookupGroup returns the named asset group within the source.
func (s Source) LookupGroup(name string) (Group, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// LookupType returns the named asset type within the group.
func (g Group) LookupType(name string) (EntityType, bool) {
	for _, t := range g.Types {
		if t.Name == name {
			return t, true
		}
	}
	return EntityType{}, false
}
