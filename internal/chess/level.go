package chess

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/Cheese-Board/internal/chess/uci"
)

const (
	MinDepth = 1
	MaxDepth = 20

	defaultThreads = 1
	defaultHashMB  = 16
)

// Level is how strong the engine plays: a search depth plus the
// process options it is started with.
type Level struct {
	Name       string
	Depth      int
	SkillLevel int
	Threads    int
	HashMB     int
	Elo        int
}

// Presets mirror the bot's difficulty ladder. Elo 0 means full strength.
var Presets = map[string]Level{
	"level1": {Name: "level1", Depth: 5, SkillLevel: 0, Threads: 2, HashMB: 16, Elo: 600},
	"level2": {Name: "level2", Depth: 6, SkillLevel: 0, Threads: 2, HashMB: 16, Elo: 700},
	"level3": {Name: "level3", Depth: 8, SkillLevel: 1, Threads: 2, HashMB: 24, Elo: 800},
	"level4": {Name: "level4", Depth: 10, SkillLevel: 3, Threads: 2, HashMB: 32, Elo: 1000},
	"level5": {Name: "level5", Depth: 12, SkillLevel: 7, Threads: 2, HashMB: 48, Elo: 1200},
	"level6": {Name: "level6", Depth: 16, SkillLevel: 11, Threads: 2, HashMB: 64, Elo: 1400},
	"level7": {Name: "level7", Depth: 20, SkillLevel: 16, Threads: 2, HashMB: 96, Elo: 1650},
	"level8": {Name: "level8", Depth: 20, SkillLevel: 20, Threads: 4, HashMB: 128, Elo: 1900},
}

// ParseLevel accepts a plain depth ("1".."20"), a preset name ("level1".."level8")
// or one of the aliases beginner/intermediate/advanced/master.
func ParseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return DepthLevel(10), nil
	case "beginner":
		name = "level1"
	case "intermediate":
		name = "level5"
	case "advanced":
		name = "level7"
	case "master":
		name = "level8"
	}
	if p, ok := Presets[name]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return Level{}, fmt.Errorf("unknown level: %q", raw)
	}
	if n < MinDepth || n > MaxDepth {
		return Level{}, fmt.Errorf("depth %d out of range %d-%d", n, MinDepth, MaxDepth)
	}
	return DepthLevel(n), nil
}

// DepthLevel plays at full skill, limited only by search depth.
func DepthLevel(depth int) Level {
	if depth < MinDepth {
		depth = MinDepth
	}
	if depth > MaxDepth {
		depth = MaxDepth
	}
	return Level{
		Name:       strconv.Itoa(depth),
		Depth:      depth,
		SkillLevel: 20,
		Threads:    defaultThreads,
		HashMB:     defaultHashMB,
	}
}

func (l Level) Options() uci.Options {
	threads := l.Threads
	if threads <= 0 {
		threads = defaultThreads
	}
	hash := l.HashMB
	if hash <= 0 {
		hash = defaultHashMB
	}
	return uci.Options{
		Threads:    threads,
		SkillLevel: l.SkillLevel,
		HashMB:     hash,
		MultiPV:    1,
		Elo:        l.Elo,
	}
}

func (l Level) Limits() uci.Limits {
	return uci.Limits{Depth: l.Depth}
}

// WithDepth keeps the process options but searches to depth instead.
func (l Level) WithDepth(depth int) Level {
	if depth >= MinDepth && depth <= MaxDepth {
		l.Depth = depth
	}
	return l
}

// Symbol is the strength badge: E up to depth 2, M up to depth 6, H above.
func (l Level) Symbol() string {
	switch {
	case l.Depth <= 2:
		return "E"
	case l.Depth <= 6:
		return "M"
	default:
		return "H"
	}
}
