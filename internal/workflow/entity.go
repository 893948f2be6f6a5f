package workflow

import (
	"time"

	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/persona"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	case StatusActive:
		return false
	default:
		return false
	}
}

type Action string

const (
	ActionRetry    Action = "retry"
	ActionProceed  Action = "proceed"
	ActionComplete Action = "complete"
	ActionChoose   Action = "choose"
)

type Choice struct {
	Phase       Phase      `json:"phase"`
	Persona     persona.ID `json:"role,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
}

type NextAction struct {
	Action        Action     `json:"action"`
	TargetPhase   Phase      `json:"targetPhase,omitempty"`
	TargetPersona persona.ID `json:"targetRole,omitempty"`
	Reason        string     `json:"reason"`
	CanProceed    bool       `json:"canProceed"`
	AutoGenerate  bool       `json:"autoGenerate,omitempty"`
	Suggestions   []string   `json:"suggestions,omitempty"`
	Choices       []Choice   `json:"choices,omitempty"`
}

// Step is one executed phase. Steps are never modified after they are
// appended to a workflow's history.
type Step struct {
	ID         string           `json:"stepId"`
	Phase      Phase            `json:"phase"`
	Persona    persona.ID       `json:"role"`
	Input      string           `json:"input"`
	Output     string           `json:"output"`
	Quality    int              `json:"quality"`
	DurationMS int64            `json:"durationMs"`
	Timestamp  time.Time        `json:"timestamp"`
	Usage      generation.Usage `json:"usage"`
	NextAction *NextAction      `json:"nextAction,omitempty"`
}

type Artifact struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Quality   int       `json:"quality"`
}

type Chapter struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Quality   int       `json:"quality"`
	WordCount int       `json:"wordCount"`
}

// Revision records how an overwritten worldview or storyline changed.
type Revision struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Diff      string    `json:"diff"`
}

type Context struct {
	OriginalPrompt string     `json:"originalPrompt"`
	Worldview      *Artifact  `json:"worldview"`
	Storyline      *Artifact  `json:"storyline"`
	Chapters       []Chapter  `json:"chapters"`
	Revisions      []Revision `json:"revisions"`
}

type Progress struct {
	// Completion only ever grows and is capped at 100.
	Completion  int `json:"completion"`
	CurrentStep int `json:"currentStep"`
	TotalSteps  int `json:"totalSteps"`
	// Quality is the rounded mean quality of every step.
	Quality int `json:"quality"`
}

type Workflow struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	ProjectName    string     `json:"projectName"`
	Status         Status     `json:"status"`
	CurrentPhase   Phase      `json:"currentPhase"`
	CurrentPersona persona.ID `json:"currentRole"`
	Context        Context    `json:"context"`
	History        []Step     `json:"history"`
	Progress       Progress   `json:"progress"`
	// PendingChoices is set while the last step asked the user to choose
	// the next phase.
	PendingChoices []Phase    `json:"pendingChoices,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (w *Workflow) LastStep() *Step {
	if len(w.History) == 0 {
		return nil
	}
	return &w.History[len(w.History)-1]
}

// Info is the listing view of a workflow.
type Info struct {
	ID             string     `json:"id"`
	ProjectName    string     `json:"projectName"`
	Status         Status     `json:"status"`
	CurrentPhase   Phase      `json:"currentPhase"`
	CurrentPersona persona.ID `json:"currentRole"`
	Progress       Progress   `json:"progress"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	StepsCount     int        `json:"stepsCount"`
	LastOutput     string     `json:"lastOutput"`
}

func (w *Workflow) Info() *Info {
	info := &Info{
		ID:             w.ID,
		ProjectName:    w.ProjectName,
		Status:         w.Status,
		CurrentPhase:   w.CurrentPhase,
		CurrentPersona: w.CurrentPersona,
		Progress:       w.Progress,
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		StepsCount:     len(w.History),
	}
	if last := w.LastStep(); last != nil {
		info.LastOutput = truncateRunes(last.Output, previewRunes)
	}
	return info
}

const previewRunes = 200

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
