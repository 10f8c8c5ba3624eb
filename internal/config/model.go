// Package config defines the format-agnostic profile model the application
// runs from, plus the Loader interface a format-specific loader (HCL)
// implements.
package config

import (
	"context"
	"time"

	"github.com/vk/tracegridgo/internal/network"
)

// Profile is the unified representation of one orchestration profile: the
// service to load, the network and starting element to resolve, and the trace
// operations that may run once the coordinator is ready.
type Profile struct {
	Service *Service
	Network *Network
	Traces  []*Trace
}

// Service describes the remote geodatabase service.
type Service struct {
	// URL of the service root.
	URL string
	// Token is the credential presented on every request, empty for
	// anonymous services.
	Token string
	// Timeout bounds each individual service call.
	Timeout time.Duration
	// Feed, when present, switches trace submission to asynchronous jobs
	// whose completion the server pushes over a socket.io feed.
	Feed *Feed
}

// Feed configures the push channel for asynchronous trace jobs.
type Feed struct {
	URL       string
	Namespace string
	// Event is the socket.io event name carrying job completions.
	Event   string
	Timeout time.Duration
}

// Network names the utility network and locates the default starting element.
type Network struct {
	Name  string
	Start network.Locator
}

// Trace is one named trace operation.
type Trace struct {
	Name string
	// Category is the filter selector; may be empty, in which case the
	// coordinator rejects the run with a precondition error.
	Category string
	// Flags are folded into the derived trace configuration.
	Flags map[string]bool
	// Targets are the group keys with a local destination for fetched
	// features.
	Targets []string
}

// Lookup returns the named trace block, or false.
func (p *Profile) Lookup(name string) (*Trace, bool) {
	for _, t := range p.Traces {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Loader is the interface for a format-specific profile loader.
type Loader interface {
	// Load reads profile configuration from a file or a directory of files
	// and translates it into the format-agnostic model.
	Load(ctx context.Context, path string) (*Profile, error)
}
