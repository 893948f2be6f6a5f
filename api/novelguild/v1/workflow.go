package novelguildv1

import "time"

type Choice struct {
	Phase       string `json:"phase"`
	PersonaId   string `json:"role,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type NextAction struct {
	Action        string    `json:"action"`
	TargetPhase   string    `json:"targetPhase,omitempty"`
	TargetPersona string    `json:"targetRole,omitempty"`
	Reason        string    `json:"reason"`
	CanProceed    bool      `json:"canProceed"`
	AutoGenerate  bool      `json:"autoGenerate"`
	Suggestions   []string  `json:"suggestions,omitempty"`
	Choices       []*Choice `json:"choices,omitempty"`
}

type Step struct {
	Id         string      `json:"stepId"`
	Phase      string      `json:"phase"`
	PersonaId  string      `json:"role"`
	Input      string      `json:"input"`
	Output     string      `json:"output"`
	Quality    int32       `json:"quality"`
	DurationMs int64       `json:"durationMs"`
	Timestamp  time.Time   `json:"timestamp"`
	Usage      TokenUsage  `json:"usage"`
	NextAction *NextAction `json:"nextAction,omitempty"`
}

type Artifact struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Quality   int32     `json:"quality"`
}

type Chapter struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Quality   int32     `json:"quality"`
	WordCount int32     `json:"wordCount"`
}

type Revision struct {
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Diff      string    `json:"diff"`
}

type WorkflowContext struct {
	OriginalPrompt string      `json:"originalPrompt"`
	Worldview      *Artifact   `json:"worldview,omitempty"`
	Storyline      *Artifact   `json:"storyline,omitempty"`
	Chapters       []*Chapter  `json:"chapters"`
	Revisions      []*Revision `json:"revisions,omitempty"`
}

type Progress struct {
	Completion  int32 `json:"completion"`
	CurrentStep int32 `json:"currentStep"`
	TotalSteps  int32 `json:"totalSteps"`
	Quality     int32 `json:"quality"`
}

type Workflow struct {
	Id             string           `json:"id"`
	UserId         string           `json:"userId"`
	ProjectName    string           `json:"projectName"`
	Status         string           `json:"status"`
	CurrentPhase   string           `json:"currentPhase"`
	CurrentPersona string           `json:"currentRole"`
	Context        *WorkflowContext `json:"context"`
	History        []*Step          `json:"history"`
	Progress       *Progress        `json:"progress"`
	PendingChoices []string         `json:"pendingChoices,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type WorkflowSummary struct {
	Id             string    `json:"id"`
	ProjectName    string    `json:"projectName"`
	Status         string    `json:"status"`
	CurrentPhase   string    `json:"currentPhase"`
	CurrentPersona string    `json:"currentRole"`
	Progress       *Progress `json:"progress"`
	StepsCount     int32     `json:"stepsCount"`
	LastOutput     string    `json:"lastOutput,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type WorkflowStatus struct {
	Status         string    `json:"status"`
	CurrentPhase   string    `json:"currentPhase"`
	CurrentPersona string    `json:"currentRole"`
	Progress       *Progress `json:"progress"`
	CanProceed     bool      `json:"canProceed"`
}

type PhaseResult struct {
	Step        *Step           `json:"step"`
	NextAction  *NextAction     `json:"nextAction"`
	Status      *WorkflowStatus `json:"workflowStatus"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

type StartWorkflowRequest struct {
	UserId        string `json:"userId"`
	ProjectName   string `json:"projectName"`
	InitialPrompt string `json:"initialPrompt"`
}

type StartWorkflowResponse struct {
	WorkflowId string       `json:"workflowId"`
	Result     *PhaseResult `json:"result"`
}

type ExecutePhaseRequest struct {
	WorkflowId string `json:"workflowId"`
	Message    string `json:"message"`
}

type ExecutePhaseResponse struct {
	Result *PhaseResult `json:"result"`
}

type ChoosePhaseRequest struct {
	WorkflowId string `json:"workflowId"`
	Phase      string `json:"phase"`
}

type ChoosePhaseResponse struct {
	NextAction *NextAction      `json:"nextAction"`
	Workflow   *WorkflowSummary `json:"workflow"`
}

type GetWorkflowRequest struct {
	WorkflowId string `json:"workflowId"`
}

type GetWorkflowResponse struct {
	Workflow *Workflow `json:"workflow"`
}

type ListWorkflowsRequest struct {
	UserId string `json:"userId"`
}

type ListWorkflowsResponse struct {
	Workflows []*WorkflowSummary `json:"workflows"`
}
