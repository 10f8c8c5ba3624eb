// Package hcl is the HCL implementation of the config.Loader interface. A
// profile is one .hcl file or a directory of them; blocks from all files are
// merged into a single config.Profile.
package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/tracegridgo/internal/config"
	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/fsutil"
	"github.com/vk/tracegridgo/internal/network"
)

// Loader parses .hcl profile files.
type Loader struct{}

// NewLoader creates a new HCL profile loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot decodes all possible top-level blocks from any profile file.
type fileRoot struct {
	Service *serviceBlock `hcl:"service,block"`
	Network *networkBlock `hcl:"network,block"`
	Traces  []*traceBlock `hcl:"trace,block"`
}

type serviceBlock struct {
	URL     string     `hcl:"url"`
	Token   string     `hcl:"token,optional"`
	Timeout string     `hcl:"timeout,optional"`
	Feed    *feedBlock `hcl:"feed,block"`
}

type feedBlock struct {
	URL       string `hcl:"url"`
	Namespace string `hcl:"namespace,optional"`
	Event     string `hcl:"event,optional"`
	Timeout   string `hcl:"timeout,optional"`
}

type networkBlock struct {
	Name    string `hcl:"name,label"`
	Source  string `hcl:"source"`
	Group   string `hcl:"group"`
	Type    string `hcl:"type"`
	Element string `hcl:"element"`
}

type traceBlock struct {
	Name     string         `hcl:"name,label"`
	Category string         `hcl:"category,optional"`
	Flags    hcl.Expression `hcl:"flags,optional"`
	Targets  []string       `hcl:"targets,optional"`
}

// Load orchestrates the profile loading process: discover files, parse and
// decode each, merge blocks, validate the result.
func (l *Loader) Load(ctx context.Context, path string) (*config.Profile, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile files under %s: %w", path, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl profile files found under %s", path)
	}
	logger.Debug("Discovered profile files.", "count", len(files))

	parser := hclparse.NewParser()
	profile := &config.Profile{}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse profile file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode profile file %s: %w", file, diags)
		}

		if err := l.merge(profile, &root, file); err != nil {
			return nil, err
		}
	}

	if err := validate(profile); err != nil {
		return nil, err
	}

	logger.Debug("Profile loading complete.", "traces", len(profile.Traces))
	return profile, nil
}

// merge folds one file's blocks into the profile, rejecting duplicates of
// the singleton blocks.
func (l *Loader) merge(profile *config.Profile, root *fileRoot, file string) error {
	if root.Service != nil {
		if profile.Service != nil {
			return fmt.Errorf("duplicate service block in %s", file)
		}
		svc, err := translateService(root.Service)
		if err != nil {
			return fmt.Errorf("invalid service block in %s: %w", file, err)
		}
		profile.Service = svc
	}

	if root.Network != nil {
		if profile.Network != nil {
			return fmt.Errorf("duplicate network block in %s", file)
		}
		net, err := translateNetwork(root.Network)
		if err != nil {
			return fmt.Errorf("invalid network block in %s: %w", file, err)
		}
		profile.Network = net
	}

	for _, tb := range root.Traces {
		if _, exists := profile.Lookup(tb.Name); exists {
			return fmt.Errorf("duplicate trace block %q in %s", tb.Name, file)
		}
		trace, err := translateTrace(tb)
		if err != nil {
			return fmt.Errorf("invalid trace block %q in %s: %w", tb.Name, file, err)
		}
		profile.Traces = append(profile.Traces, trace)
	}
	return nil
}

func validate(profile *config.Profile) error {
	if profile.Service == nil {
		return fmt.Errorf("profile is missing a service block")
	}
	if profile.Network == nil {
		return fmt.Errorf("profile is missing a network block")
	}
	if len(profile.Traces) == 0 {
		return fmt.Errorf("profile defines no trace blocks")
	}
	return nil
}

func translateService(b *serviceBlock) (*config.Service, error) {
	timeout, err := parseTimeout(b.Timeout, 30*time.Second)
	if err != nil {
		return nil, err
	}

	svc := &config.Service{
		URL:     b.URL,
		Token:   b.Token,
		Timeout: timeout,
	}
	if b.URL == "" {
		return nil, fmt.Errorf("url must not be empty")
	}

	if b.Feed != nil {
		feedTimeout, err := parseTimeout(b.Feed.Timeout, 2*time.Minute)
		if err != nil {
			return nil, err
		}
		event := b.Feed.Event
		if event == "" {
			event = "job:completed"
		}
		svc.Feed = &config.Feed{
			URL:       b.Feed.URL,
			Namespace: b.Feed.Namespace,
			Event:     event,
			Timeout:   feedTimeout,
		}
	}
	return svc, nil
}

func translateNetwork(b *networkBlock) (*config.Network, error) {
	id, err := uuid.Parse(b.Element)
	if err != nil {
		return nil, fmt.Errorf("element must be a UUID: %w", err)
	}
	return &config.Network{
		Name: b.Name,
		Start: network.Locator{
			Source:     b.Source,
			Group:      b.Group,
			Type:       b.Type,
			Identifier: id,
		},
	}, nil
}

func translateTrace(b *traceBlock) (*config.Trace, error) {
	flags, err := decodeFlags(b.Flags)
	if err != nil {
		return nil, err
	}
	return &config.Trace{
		Name:     b.Name,
		Category: b.Category,
		Flags:    flags,
		Targets:  b.Targets,
	}, nil
}

func parseTimeout(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", raw, err)
	}
	return d, nil
}
