package persona

// Scenario tunes emphasis and temperature for a conversation.
type Scenario string

const (
	ScenarioDefault        Scenario = "default"
	ScenarioBrainstorming  Scenario = "brainstorming"
	ScenarioReview         Scenario = "review"
	ScenarioProblemSolving Scenario = "problem_solving"
	ScenarioCreation       Scenario = "creation"
)

var Scenarios = []Scenario{
	ScenarioDefault,
	ScenarioBrainstorming,
	ScenarioReview,
	ScenarioProblemSolving,
	ScenarioCreation,
}

// ParseScenario maps unknown or empty values to ScenarioDefault.
func ParseScenario(s string) Scenario {
	switch sc := Scenario(s); sc {
	case ScenarioBrainstorming, ScenarioReview, ScenarioProblemSolving, ScenarioCreation:
		return sc
	default:
		return ScenarioDefault
	}
}

func (s Scenario) Label() string {
	switch s {
	case ScenarioBrainstorming:
		return "头脑风暴"
	case ScenarioReview:
		return "作品审核"
	case ScenarioProblemSolving:
		return "问题解决"
	case ScenarioCreation:
		return "内容创作"
	default:
		return "常规对话"
	}
}
