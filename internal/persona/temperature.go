package persona

// DefaultTemperature applies when nothing more specific is known.
const DefaultTemperature = 0.7

type temperatureProfile struct {
	base      float64
	scenarios map[Scenario]float64
}

func profileOf(id ID) (temperatureProfile, bool) {
	switch id {
	case Architect:
		return temperatureProfile{0.7, map[Scenario]float64{
			ScenarioBrainstorming: 0.9,
			ScenarioReview:        0.5,
		}}, true
	case Planner:
		return temperatureProfile{0.6, map[Scenario]float64{
			ScenarioBrainstorming: 0.8,
			ScenarioReview:        0.4,
		}}, true
	case Writer:
		return temperatureProfile{0.8, map[Scenario]float64{
			ScenarioCreation: 0.9,
			ScenarioReview:   0.5,
		}}, true
	case Director:
		return temperatureProfile{0.5, map[Scenario]float64{
			ScenarioReview:         0.3,
			ScenarioProblemSolving: 0.6,
		}}, true
	case NovelArchitect:
		return temperatureProfile{0.6, map[Scenario]float64{
			ScenarioBrainstorming:  0.8,
			ScenarioReview:         0.4,
			ScenarioProblemSolving: 0.7,
		}}, true
	default:
		return temperatureProfile{}, false
	}
}

// Temperature returns the sampling temperature for a persona in a scenario,
// falling back to the persona default and then DefaultTemperature.
func Temperature(id ID, scenario Scenario) float64 {
	p, ok := profileOf(id)
	if !ok {
		return DefaultTemperature
	}
	if t, ok := p.scenarios[scenario]; ok {
		return t
	}
	return p.base
}
