package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFlagCatalogIsValid(t *testing.T) {
	cat := DefaultFlagCatalog()
	require.NoError(t, validateFlagCatalog(cat))

	for _, f := range cat.Flags {
		assert.NotEmpty(t, f.Key)
		assert.NotEmpty(t, f.Name)
		assert.Contains(t, f.Channels, "internal")
		assert.Contains(t, f.Channels, "pilot")
		assert.Contains(t, f.Channels, "general")
	}
}

func TestValidateFlagCatalogRejectsBadInput(t *testing.T) {
	assert.Error(t, validateFlagCatalog(FlagCatalog{}))

	assert.Error(t, validateFlagCatalog(FlagCatalog{
		Flags: []FlagSpec{{Key: "  "}},
	}))

	assert.Error(t, validateFlagCatalog(FlagCatalog{
		Flags: []FlagSpec{
			{Key: "dispatch.auto_assign"},
			{Key: "dispatch.auto_assign"},
		},
	}))
}

func TestFlagCatalogHolderNotifiesOnChange(t *testing.T) {
	holder := &FlagCatalogHolder{}
	holder.current.Store(DefaultFlagCatalog())

	var got []FlagCatalog
	holder.OnChange(func(cat FlagCatalog) {
		got = append(got, cat)
	})

	updated := FlagCatalog{Flags: []FlagSpec{{Key: "routing.live_traffic", Name: "Live traffic aware routing"}}}
	holder.current.Store(updated)
	holder.notify(updated)

	require.Len(t, got, 1)
	assert.Equal(t, "routing.live_traffic", got[0].Flags[0].Key)
	assert.Len(t, holder.Get().Flags, 1)
}
