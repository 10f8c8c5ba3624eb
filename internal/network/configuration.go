package network

// Configuration carries the parameters governing a trace: the base payload
// owned by the loaded definition, a filter category predicate, and a set of
// named boolean flags. A Configuration is never mutated after construction;
// variants are produced wholesale via WithFilter.
type Configuration struct {
	base   map[string]any
	filter string
	flags  map[string]bool
}

// NewConfiguration derives a configuration from the definition-supplied base
// and the caller's flags. Both maps are copied so later changes by the caller
// cannot reach in.
func NewConfiguration(base map[string]any, flags map[string]bool) Configuration {
	return Configuration{
		base:  copyMap(base),
		flags: copyMap(flags),
	}
}

// WithFilter returns a copy of the configuration with the filter predicate
// replaced. The receiver is left untouched.
func (c Configuration) WithFilter(filter string) Configuration {
	out := Configuration{
		base:   copyMap(c.base),
		filter: filter,
		flags:  copyMap(c.flags),
	}
	return out
}

// Base returns a copy of the opaque base payload.
func (c Configuration) Base() map[string]any { return copyMap(c.base) }

// Filter returns the filter category predicate, empty if none was set.
func (c Configuration) Filter() string { return c.filter }

// Flag reports the value of a named boolean flag, false if unset.
func (c Configuration) Flag(name string) bool { return c.flags[name] }

// Flags returns a copy of all named flags.
func (c Configuration) Flags() map[string]bool { return copyMap(c.flags) }

func copyMap[V any](src map[string]V) map[string]V {
	if src == nil {
		return nil
	}
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
