package workflow

import (
	"github.com/kazz187/novelguild/internal/persona"
)

// Phase is a step of the authoring workflow. PhaseCompleted is only ever a
// transition target; it has no Definition of its own.
type Phase string

const (
	PhaseAnalysis      Phase = "analysis"
	PhaseWorldbuilding Phase = "worldbuilding"
	PhasePlanning      Phase = "planning"
	PhaseWriting       Phase = "writing"
	PhaseReview        Phase = "review"
	PhaseCompleted     Phase = "completed"
)

// Phases lists the executable phases in nominal order.
var Phases = []Phase{PhaseAnalysis, PhaseWorldbuilding, PhasePlanning, PhaseWriting, PhaseReview}

// TotalSteps is the number of executable phases.
const TotalSteps = 5

type Definition struct {
	Phase       Phase
	Persona     persona.ID
	Name        string
	Description string
	Next        []Phase
	Temperature float64
	MaxTokens   int
	// Weight is added to the completion percentage when a step of the
	// phase finishes.
	Weight     int
	Keywords   []string
	Suggestion string
}

// Valid reports whether p is an executable phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseAnalysis, PhaseWorldbuilding, PhasePlanning, PhaseWriting, PhaseReview:
		return true
	case PhaseCompleted:
		return false
	default:
		return false
	}
}

// Target reports whether p may be chosen as a transition target.
func (p Phase) Target() bool {
	return p.Valid() || p == PhaseCompleted
}

func (p Phase) Name() string {
	if d, ok := Lookup(p); ok {
		return d.Name
	}
	if p == PhaseCompleted {
		return "完成"
	}
	return string(p)
}

// Lookup returns the definition of an executable phase.
func Lookup(p Phase) (Definition, bool) {
	switch p {
	case PhaseAnalysis:
		return Definition{
			Phase:       p,
			Persona:     persona.Director,
			Name:        "需求分析",
			Description: "理解创作需求，制定创作计划",
			Next:        []Phase{PhaseWorldbuilding, PhasePlanning},
			Temperature: 0.3,
			MaxTokens:   1024,
			Weight:      10,
			Keywords:    []string{"目标", "需求"},
			Suggestion:  "可以补充更详细的创作目标和读者定位",
		}, true
	case PhaseWorldbuilding:
		return Definition{
			Phase:       p,
			Persona:     persona.Architect,
			Name:        "世界观构建",
			Description: "设计故事世界的背景设定",
			Next:        []Phase{PhasePlanning},
			Temperature: 0.8,
			MaxTokens:   2048,
			Weight:      25,
			Keywords:    []string{"世界", "设定"},
			Suggestion:  "考虑添加更多独特的世界观元素",
		}, true
	case PhasePlanning:
		return Definition{
			Phase:       p,
			Persona:     persona.Planner,
			Name:        "故事规划",
			Description: "制定故事大纲和结构",
			Next:        []Phase{PhaseWriting},
			Temperature: 0.6,
			MaxTokens:   2048,
			Weight:      30,
			Keywords:    []string{"大纲", "结构"},
			Suggestion:  "确保故事结构完整，有清晰的起承转合",
		}, true
	case PhaseWriting:
		return Definition{
			Phase:       p,
			Persona:     persona.Writer,
			Name:        "内容创作",
			Description: "根据大纲进行具体写作",
			Next:        []Phase{PhaseReview},
			Temperature: 0.9,
			MaxTokens:   3072,
			Weight:      30,
			Keywords:    []string{"章节", "内容"},
			Suggestion:  "注意保持文风一致性和人物性格连贯性",
		}, true
	case PhaseReview:
		return Definition{
			Phase:       p,
			Persona:     persona.Director,
			Name:        "质量审查",
			Description: "检查作品质量，提出改进建议",
			Next:        []Phase{PhaseWorldbuilding, PhasePlanning, PhaseWriting, PhaseCompleted},
			Temperature: 0.4,
			MaxTokens:   1024,
			Weight:      5,
		}, true
	case PhaseCompleted:
		return Definition{}, false
	default:
		return Definition{}, false
	}
}

// MustLookup is Lookup for phases already known to be valid.
func MustLookup(p Phase) Definition {
	d, ok := Lookup(p)
	if !ok {
		panic("workflow: unknown phase " + string(p))
	}
	return d
}
