// Package gamification awards XP for missions and derives levels and
// level-gated unlocks from it.
package gamification

// Thresholds holds the cumulative XP needed for each level. Index 0 is
// level 1.
var Thresholds = []int{0, 100, 250, 500, 850, 1300, 1900, 2650, 3600, 5000}

// MaxLevel is the highest reachable level.
func MaxLevel() int { return len(Thresholds) }

// LevelFor returns the level reached with xp.
func LevelFor(xp int) int {
	level := 1
	for i := 1; i < len(Thresholds); i++ {
		if xp >= Thresholds[i] {
			level = i + 1
		}
	}
	return level
}

// Progress describes where a user stands within the level table.
type Progress struct {
	Level      int  `json:"level"`
	XP         int  `json:"xp"`
	LevelFloor int  `json:"level_floor"`
	NextLevel  int  `json:"next_level_xp,omitempty"`
	ToNext     int  `json:"to_next,omitempty"`
	Max        bool `json:"max_level"`
}

// ProgressFor computes the progress for a given XP total.
func ProgressFor(xp int) Progress {
	level := LevelFor(xp)
	p := Progress{Level: level, XP: xp, LevelFloor: Thresholds[level-1]}
	if level >= MaxLevel() {
		p.Max = true
		return p
	}
	p.NextLevel = Thresholds[level]
	p.ToNext = p.NextLevel - xp
	return p
}

// LevelInfo is one row of the level table.
type LevelInfo struct {
	Level   int       `json:"level"`
	XP      int       `json:"xp"`
	Unlocks []Feature `json:"unlocks,omitempty"`
}

// Table returns the level table with the features each level unlocks.
func Table() []LevelInfo {
	out := make([]LevelInfo, len(Thresholds))
	for i, xp := range Thresholds {
		out[i] = LevelInfo{Level: i + 1, XP: xp}
	}
	for _, f := range Features {
		lvl := Unlocks[f]
		if lvl >= 1 && lvl <= len(out) {
			out[lvl-1].Unlocks = append(out[lvl-1].Unlocks, f)
		}
	}
	return out
}
