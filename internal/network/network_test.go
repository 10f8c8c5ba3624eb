package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefinition() *Definition {
	return &Definition{
		Name: "Naperville Gas",
		Sources: []Source{
			{
				Name: "Gas Device",
				Groups: []Group{
					{Name: "Meter", Types: []EntityType{{Name: "Customer Meter"}}},
				},
			},
			{Name: "Gas Line"},
		},
		Base: map[string]any{"domainNetwork": "Pipeline"},
	}
}

func TestLookupChain(t *testing.T) {
	def := sampleDefinition()

	src, ok := def.LookupSource("Gas Device")
	require.True(t, ok)

	grp, ok := src.LookupGroup("Meter")
	require.True(t, ok)

	typ, ok := grp.LookupType("Customer Meter")
	require.True(t, ok)
	assert.Equal(t, "Customer Meter", typ.Name)

	t.Run("misses at each link", func(t *testing.T) {
		_, ok := def.LookupSource("Water Device")
		assert.False(t, ok)

		_, ok = src.LookupGroup("Pump")
		assert.False(t, ok)

		_, ok = grp.LookupType("Bronze Meter")
		assert.False(t, ok)
	})
}

func TestConfigurationIsImmutable(t *testing.T) {
	base := map[string]any{"domainNetwork": "Pipeline"}
	flags := map[string]bool{"include_isolated": true}
	cfg := NewConfiguration(base, flags)

	// Mutating the caller's maps after construction must not reach in.
	base["domainNetwork"] = "Water"
	flags["include_isolated"] = false
	assert.Equal(t, "Pipeline", cfg.Base()["domainNetwork"])
	assert.True(t, cfg.Flag("include_isolated"))

	// Accessor copies are detached too.
	cfg.Base()["domainNetwork"] = "Sewer"
	assert.Equal(t, "Pipeline", cfg.Base()["domainNetwork"])
}

func TestConfigurationWithFilterReplacesWholesale(t *testing.T) {
	cfg := NewConfiguration(map[string]any{"k": "v"}, map[string]bool{"f": true})

	filtered := cfg.WithFilter("ValveOperable")
	assert.Equal(t, "ValveOperable", filtered.Filter())
	assert.Equal(t, "", cfg.Filter())
	assert.True(t, filtered.Flag("f"))
	assert.Equal(t, "v", filtered.Base()["k"])
}

func TestGroupItems(t *testing.T) {
	items := []ResultItem{
		{GroupKey: "Gas Device", Ref: 1},
		{GroupKey: "Gas Line", Ref: 2},
		{GroupKey: "Gas Device", Ref: 3},
		{GroupKey: "Sewer", Ref: 4},
		{GroupKey: "Sewer", Ref: 5},
	}
	targets := map[string]bool{"Gas Device": true, "Gas Line": true}

	matched, skipped := GroupItems(items, func(key string) bool { return targets[key] })

	// First-seen key order, item order preserved within each group.
	require.Len(t, matched, 2)
	assert.Equal(t, "Gas Device", matched[0].Key)
	assert.Equal(t, []ResultItem{{GroupKey: "Gas Device", Ref: 1}, {GroupKey: "Gas Device", Ref: 3}}, matched[0].Items)
	assert.Equal(t, "Gas Line", matched[1].Key)

	// An untargeted key is skipped once, not errored.
	assert.Equal(t, []string{"Sewer"}, skipped)
}

func TestGroupItemsEmpty(t *testing.T) {
	matched, skipped := GroupItems(nil, func(string) bool { return true })
	assert.Empty(t, matched)
	assert.Empty(t, skipped)
}
