package persona

import (
	"path"
	"strings"
)

// Registry is the read-only persona catalog.
type Registry struct {
	personas map[ID]*Persona
	order    []ID
}

func NewRegistry() *Registry {
	r := &Registry{personas: make(map[ID]*Persona, len(IDs))}
	for _, id := range IDs {
		r.personas[id] = builtin(id)
		r.order = append(r.order, id)
	}
	return r
}

func builtin(id ID) *Persona {
	p := &Persona{ID: id, Strategy: StrategyModular}
	switch id {
	case Architect:
		p.Name, p.Icon, p.Color = "世界观架构师", "🏛️", "#4A90E2"
		p.Description = "世界观构建专家"
		p.ContentAreas = []string{"0-小说设定"}
	case Planner:
		p.Name, p.Icon, p.Color = "故事规划师", "📐", "#7B68EE"
		p.Description = "故事结构规划师"
		p.ContentAreas = []string{"1-故事大纲", "2-故事概要"}
	case Writer:
		p.Name, p.Icon, p.Color = "文学写手", "✍️", "#FF6B6B"
		p.Description = "内容创作专家"
		p.ContentAreas = []string{"3-小说内容"}
	case Director:
		p.Name, p.Icon, p.Color = "创作总监", "🎬", "#4ECDC4"
		p.Description = "质量把控专家"
		p.ContentAreas = []string{"all"}
	case NovelArchitect:
		p.Name, p.Icon, p.Color = "小说架构师", "🏗️", "#9B59B6"
		p.Description = "项目专属AI角色，融合技术与创作的桥梁"
		p.ContentAreas = []string{"all"}
	}
	return p
}

// Get returns the persona for a raw id, or a NotFound error.
func (r *Registry) Get(id string) (*Persona, error) {
	p, ok := r.personas[ID(strings.TrimSpace(id))]
	if !ok {
		return nil, NotFoundError(id)
	}
	return p, nil
}

// MustGet is for ids that are known to be in the catalog.
func (r *Registry) MustGet(id ID) *Persona {
	p, ok := r.personas[id]
	if !ok {
		panic("persona: unknown id " + string(id))
	}
	return p
}

func (r *Registry) List() []*Persona {
	out := make([]*Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.personas[id])
	}
	return out
}

// SuggestForPath picks the persona best suited to a project file. Personas
// owning the file's directory win, then filename hints, then the director.
func (r *Registry) SuggestForPath(filePath string) ID {
	clean := strings.ReplaceAll(filePath, "\\", "/")
	for _, id := range []ID{Architect, Planner, Writer} {
		if r.personas[id].Owns(clean) {
			return id
		}
	}

	name := strings.ToLower(path.Base(clean))
	switch {
	case strings.Contains(name, "设定") || strings.Contains(name, "setting"):
		return Architect
	case strings.Contains(name, "大纲") || strings.Contains(name, "outline"),
		strings.Contains(name, "概要") || strings.Contains(name, "summary"):
		return Planner
	case strings.Contains(name, "章") || strings.Contains(name, "chapter"):
		return Writer
	default:
		return Director
	}
}
