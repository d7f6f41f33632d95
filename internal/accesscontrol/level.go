package accesscontrol

// Level is a permission strictness token. Field scopes use hidden where row
// scopes use invisible; both rank equally strict.
type Level string

const (
	LevelInvisible Level = "invisible"
	LevelHidden    Level = "hidden"
	LevelReadOnly  Level = "read_only"
	LevelEditable  Level = "editable"
)

// Rank orders levels from most to least restrictive. Unknown tokens rank as
// editable so a bad stored value can only widen, never lock out, and the
// write paths validate levels before persisting them.
func (l Level) Rank() int {
	switch l {
	case LevelInvisible, LevelHidden:
		return 0
	case LevelReadOnly:
		return 1
	default:
		return 2
	}
}

// Valid reports whether l is one of the known tokens.
func (l Level) Valid() bool {
	switch l {
	case LevelInvisible, LevelHidden, LevelReadOnly, LevelEditable:
		return true
	}
	return false
}

// Strictest merges any number of levels, keeping the most restrictive one.
// Ties keep the earlier operand. No levels at all means no restriction.
func Strictest(levels ...Level) Level {
	merged := LevelEditable
	best := LevelEditable.Rank()
	for i, level := range levels {
		if rank := level.Rank(); i == 0 || rank < best {
			merged = level
			best = rank
		}
	}
	return merged
}

// Merge combines two scope levels, keeping the stricter. Equal ranks keep a.
func Merge(a, b Level) Level {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}
