package accesscontrol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrictestEmptyIsEditable(t *testing.T) {
	require.Equal(t, LevelEditable, Strictest())
}

func TestStrictestKeepsMostRestrictive(t *testing.T) {
	require.Equal(t, LevelInvisible, Strictest(LevelInvisible, LevelEditable))
	require.Equal(t, LevelInvisible, Strictest(LevelEditable, LevelInvisible))
	require.Equal(t, LevelReadOnly, Strictest(LevelEditable, LevelReadOnly, LevelEditable))
	require.Equal(t, LevelHidden, Strictest(LevelReadOnly, LevelHidden, LevelEditable))
}

func TestMergeCommutativeByRank(t *testing.T) {
	levels := []Level{LevelInvisible, LevelHidden, LevelReadOnly, LevelEditable}
	for _, a := range levels {
		for _, b := range levels {
			require.Equal(t, Merge(a, b).Rank(), Merge(b, a).Rank(), "merge(%s,%s)", a, b)
			for _, c := range levels {
				require.Equal(t, Merge(Merge(a, b), c).Rank(), Merge(a, Merge(b, c)).Rank())
			}
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	for _, l := range []Level{LevelInvisible, LevelHidden, LevelReadOnly, LevelEditable} {
		require.Equal(t, l, Merge(l, l))
	}
}

func TestMergeTieKeepsFirstOperand(t *testing.T) {
	// hidden and invisible rank equally strict; the first operand wins.
	require.Equal(t, LevelHidden, Merge(LevelHidden, LevelInvisible))
	require.Equal(t, LevelInvisible, Merge(LevelInvisible, LevelHidden))
}

func TestUnknownLevelRanksEditable(t *testing.T) {
	require.Equal(t, 2, Level("garbage").Rank())
	require.False(t, Level("garbage").Valid())
}
