package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeedsListScheme(t *testing.T) {
	seeds, err := LoadSeeds("list:10.53.0.2,10.53.0.3,10.53.0.4", "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.53.0.2", "10.53.0.3", "10.53.0.4"}, keysOf(seeds.All))
}

func TestLoadSeedsListSchemeExcludesSelf(t *testing.T) {
	seeds, err := LoadSeeds("list:10.53.0.2,10.53.0.3", "10.53.0.2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.53.0.2", "10.53.0.3"}, keysOf(seeds.All))
	assert.ElementsMatch(t, []string{"10.53.0.3"}, seeds.Choose(10))
}

func TestLoadSeedsEmptyTextIsEmptySet(t *testing.T) {
	seeds, err := LoadSeeds("", "")
	require.NoError(t, err)
	assert.Empty(t, seeds.All)
	assert.Empty(t, seeds.Choose(5))
}

func TestChooseNeverExceedsPoolSize(t *testing.T) {
	seeds, err := LoadSeeds("list:10.53.0.2,10.53.0.3", "")
	require.NoError(t, err)
	assert.Len(t, seeds.Choose(10), 2)
}

func keysOf(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
