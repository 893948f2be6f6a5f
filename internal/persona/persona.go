package persona

import (
	"fmt"
	"path"
	"strings"

	"github.com/kazz187/novelguild/pkg/cerr"
)

// ID identifies one of the built-in personas.
type ID string

const (
	Architect      ID = "architect"
	Planner        ID = "planner"
	Writer         ID = "writer"
	Director       ID = "director"
	NovelArchitect ID = "novel-architect"
)

// IDs lists every persona in catalog order.
var IDs = []ID{Architect, Planner, Writer, Director, NovelArchitect}

func (id ID) Valid() bool {
	switch id {
	case Architect, Planner, Writer, Director, NovelArchitect:
		return true
	default:
		return false
	}
}

func (id ID) String() string {
	return string(id)
}

// ModularDir is the directory holding the persona's modular role definition.
func (id ID) ModularDir() string {
	switch id {
	case Architect:
		return "worldview-designer"
	case Planner:
		return "novel-planner"
	case Writer:
		return "text-creator"
	case Director:
		return "system-director"
	case NovelArchitect:
		return "novel-architect"
	default:
		return string(id)
	}
}

// ErrNotFound is wrapped by every unknown persona error.
var ErrNotFound = cerr.NewError(cerr.NotFound, "persona not found", nil)

// NotFoundError returns a NotFound error for id that matches ErrNotFound
// with errors.Is.
func NotFoundError(id string) error {
	return cerr.NewError(cerr.NotFound, fmt.Sprintf("未知的角色ID: %s", id), ErrNotFound)
}

// ParseID validates s against the catalog.
func ParseID(s string) (ID, error) {
	id := ID(strings.TrimSpace(s))
	if !id.Valid() {
		return "", NotFoundError(s)
	}
	return id, nil
}

// Strategy selects how a persona's instructions are assembled.
type Strategy int

const (
	// StrategyLegacy composes a single tagged or structured document.
	StrategyLegacy Strategy = iota + 1
	// StrategyModular composes a role definition from referenced modules.
	StrategyModular
)

func (s Strategy) String() string {
	switch s {
	case StrategyLegacy:
		return "legacy"
	case StrategyModular:
		return "modular"
	default:
		return "unknown"
	}
}

// Persona is immutable once the registry is built.
type Persona struct {
	ID          ID
	Name        string
	Icon        string
	Color       string
	Description string
	// ContentAreas are project directories the persona owns. "all" means
	// the persona works across the whole project.
	ContentAreas []string
	Strategy     Strategy
}

// Owns reports whether a project relative path falls in one of the
// persona's content areas.
func (p *Persona) Owns(filePath string) bool {
	clean := path.Clean(strings.ReplaceAll(filePath, "\\", "/"))
	for _, area := range p.ContentAreas {
		if area == "all" {
			return true
		}
		if clean == area || strings.HasPrefix(clean, area+"/") || strings.Contains(clean, "/"+area+"/") {
			return true
		}
	}
	return false
}
