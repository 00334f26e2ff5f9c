package meditation

import (
	_ "embed"
	"fmt"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed templates.toml
var templatesTOML []byte

// typeProfile holds the planner attributes of one segment type.
type typeProfile struct {
	Speech      float64 `toml:"speech"`
	Silence     float64 `toml:"silence"`
	Priority    int     `toml:"priority"`
	Flexibility float64 `toml:"flexibility"`
	Purpose     string  `toml:"purpose"`
}

// fallbackEntry is one deterministic narration template.
type fallbackEntry struct {
	Type string `toml:"type"`
	Goal string `toml:"goal"`
	Text string `toml:"text"`
}

// templateTables is the parsed form of templates.toml.
type templateTables struct {
	Types    map[string]typeProfile `toml:"types"`
	Fallback []fallbackEntry        `toml:"fallback"`
}

var (
	tablesOnce sync.Once
	tables     templateTables
	tablesErr  error
)

// loadTables parses the embedded archetype tables exactly once.
func loadTables() (templateTables, error) {
	tablesOnce.Do(func() {
		tablesErr = toml.Unmarshal(templatesTOML, &tables)
		if tablesErr != nil {
			tablesErr = fmt.Errorf("parse embedded templates: %w", tablesErr)
		}
	})
	return tables, tablesErr
}

// profileFor returns the planner attributes for a segment type.
// Unknown types fall back to a neutral profile.
func profileFor(t SegmentType) typeProfile {
	tbl, err := loadTables()
	if err != nil {
		return typeProfile{Speech: 1, Silence: 1, Priority: 3, Flexibility: 0.5}
	}
	p, ok := tbl.Types[string(t)]
	if !ok {
		return typeProfile{Speech: 1, Silence: 1, Priority: 3, Flexibility: 0.5}
	}
	return p
}

// FallbackText returns the deterministic narration for a segment type and
// goal. A goal-specific template wins over the type default; a generic
// grounding line is the last resort so a fallback always exists.
func FallbackText(t SegmentType, goal Goal) string {
	tbl, err := loadTables()
	if err == nil {
		var def string
		for _, e := range tbl.Fallback {
			if e.Type != string(t) {
				continue
			}
			if e.Goal == string(goal) {
				return e.Text
			}
			if e.Goal == "" {
				def = e.Text
			}
		}
		if def != "" {
			return def
		}
	}
	return "Take a slow breath in, and a long breath out. Allow yourself to rest here, exactly as you are."
}
