package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/novelguild/internal/conversation"
	"github.com/kazz187/novelguild/internal/eventbus"
	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/pkg/cerr"
)

const (
	maxUserIDLen      = 64
	maxProjectNameLen = 100
	maxCleanNameLen   = 20
	// enhancedMessageLimit bounds the message sent to a persona once the
	// project context has been added.
	enhancedMessageLimit = 4 * conversation.MaxMessageRunes
)

var ErrInvalidInput = cerr.NewError(cerr.InvalidArgument, "invalid workflow input", nil)

var (
	userIDPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	nonNamePattern   = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fa5}]`)
	branchKeywords   = []string{"科幻", "奇幻", "魔法", "异世界", "未来", "古代", "历史", "世界观", "设定", "背景", "架空", "虚构世界"}
	retrySuggestions = []string{"请提供更详细的需求描述", "可以参考其他优秀作品的结构", "考虑增加更多创意元素"}
)

func invalidInput(msg string) error {
	return cerr.NewError(cerr.InvalidArgument, msg, ErrInvalidInput).AddDetailMessage(msg)
}

// Conversation runs a single persona exchange.
type Conversation interface {
	Converse(ctx context.Context, personaID, message string, opts conversation.Options) (*conversation.Result, error)
	ConverseStream(ctx context.Context, personaID, message string, opts conversation.Options, onDelta func(string) error) (*conversation.Result, error)
}

type Orchestrator struct {
	repo   Repository
	conv   Conversation
	scorer Scorer
	bus    *eventbus.Bus
	locks  *keyedMutex
	now    func() time.Time
}

type Option func(*Orchestrator)

func WithScorer(s Scorer) Option {
	return func(o *Orchestrator) {
		o.scorer = s
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(repo Repository, conv Conversation, bus *eventbus.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:   repo,
		conv:   conv,
		scorer: HeuristicScorer{},
		bus:    bus,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StatusInfo is the workflow state after a step.
type StatusInfo struct {
	Status         Status     `json:"status"`
	CurrentPhase   Phase      `json:"currentPhase"`
	CurrentPersona persona.ID `json:"currentRole"`
	Progress       Progress   `json:"progress"`
	CanProceed     bool       `json:"canProceed"`
}

type ExecuteResult struct {
	Step        *Step      `json:"step"`
	NextAction  NextAction `json:"nextAction"`
	Status      StatusInfo `json:"workflowStatus"`
	Suggestions []string   `json:"suggestions"`
	Workflow    *Workflow  `json:"-"`
}

type StartResult struct {
	WorkflowID string         `json:"workflowId"`
	Workflow   *Workflow      `json:"-"`
	Result     *ExecuteResult `json:"result"`
}

// ValidateStart checks the inputs of Start without side effects.
func ValidateStart(userID, projectName, initialPrompt string) error {
	switch {
	case userID == "":
		return invalidInput("用户ID不能为空")
	case len(userID) > maxUserIDLen || !userIDPattern.MatchString(userID):
		return invalidInput("用户ID格式无效")
	case strings.TrimSpace(projectName) == "":
		return invalidInput("项目名称不能为空")
	case utf8.RuneCountInString(projectName) > maxProjectNameLen:
		return invalidInput(fmt.Sprintf("项目名称不能超过%d字符", maxProjectNameLen))
	}
	if err := conversation.ValidateMessage(initialPrompt); err != nil {
		var e *cerr.Error
		if errors.As(err, &e) {
			return invalidInput(e.Msg)
		}
		return err
	}
	return nil
}

// NewID derives a workflow id from its owner, project and creation time.
func NewID(userID, projectName string, at time.Time) string {
	clean := []rune(nonNamePattern.ReplaceAllString(projectName, ""))
	if len(clean) > maxCleanNameLen {
		clean = clean[:maxCleanNameLen]
	}
	return fmt.Sprintf("%s_%s_%d", userID, string(clean), at.UnixMilli())
}

// Start creates a workflow and runs its analysis phase on initialPrompt.
func (o *Orchestrator) Start(ctx context.Context, userID, projectName, initialPrompt string) (*StartResult, error) {
	return o.start(ctx, userID, projectName, initialPrompt, nil)
}

func (o *Orchestrator) StartStream(ctx context.Context, userID, projectName, initialPrompt string, onDelta func(string) error) (*StartResult, error) {
	return o.start(ctx, userID, projectName, initialPrompt, onDelta)
}

func (o *Orchestrator) start(ctx context.Context, userID, projectName, initialPrompt string, onDelta func(string) error) (*StartResult, error) {
	if err := ValidateStart(userID, projectName, initialPrompt); err != nil {
		return nil, err
	}
	now := o.now().UTC()
	w := &Workflow{
		ID:             NewID(userID, projectName, now),
		UserID:         userID,
		ProjectName:    strings.TrimSpace(projectName),
		Status:         StatusActive,
		CurrentPhase:   PhaseAnalysis,
		CurrentPersona: MustLookup(PhaseAnalysis).Persona,
		Context:        Context{OriginalPrompt: initialPrompt},
		Progress:       Progress{CurrentStep: 1, TotalSteps: TotalSteps},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.repo.Create(ctx, w); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "workflow: started", "workflow_id", w.ID, "project", w.ProjectName)

	res, err := o.execute(ctx, w.ID, initialPrompt, nil, onDelta)
	if err != nil {
		return nil, err
	}
	return &StartResult{WorkflowID: w.ID, Workflow: res.Workflow, Result: res}, nil
}

// ExecuteCurrentPhase runs the workflow's current phase with message.
func (o *Orchestrator) ExecuteCurrentPhase(ctx context.Context, id, message string) (*ExecuteResult, error) {
	if err := conversation.ValidateMessage(message); err != nil {
		return nil, err
	}
	return o.execute(ctx, id, message, nil, nil)
}

// ExecuteCurrentPhaseStream is ExecuteCurrentPhase forwarding generated
// text to onDelta as it arrives. onStart, when set, receives the phase
// that is about to run. It is called while the workflow is held, so it
// always names the phase the deltas belong to. An error from onStart
// aborts the execution without touching the workflow.
func (o *Orchestrator) ExecuteCurrentPhaseStream(ctx context.Context, id, message string, onStart func(Definition) error, onDelta func(string) error) (*ExecuteResult, error) {
	if err := conversation.ValidateMessage(message); err != nil {
		return nil, err
	}
	return o.execute(ctx, id, message, onStart, onDelta)
}

// Executable loads a workflow and reports an error unless it is active.
func (o *Orchestrator) Executable(ctx context.Context, id string) (*Workflow, error) {
	w, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusActive {
		return nil, cerr.NewError(cerr.FailedPrecondition, fmt.Sprintf("工作流已结束: %s", w.Status), nil)
	}
	if !w.CurrentPhase.Valid() {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("workflow %s has invalid phase %q", w.ID, w.CurrentPhase))
	}
	return w, nil
}

func (o *Orchestrator) execute(ctx context.Context, id, message string, onStart func(Definition) error, onDelta func(string) error) (*ExecuteResult, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	w, err := o.Executable(ctx, id)
	if err != nil {
		return nil, err
	}
	def := MustLookup(w.CurrentPhase)
	if onStart != nil {
		if err := onStart(def); err != nil {
			return nil, err
		}
	}
	start := o.now()

	temperature := def.Temperature
	opts := conversation.Options{
		Scenario:     persona.ScenarioCreation,
		ProjectInfo:  w.ProjectName,
		MaxTokens:    def.MaxTokens,
		Temperature:  &temperature,
		MessageLimit: enhancedMessageLimit,
	}
	enhanced := o.enhancedMessage(w, def, message)

	slog.InfoContext(ctx, "workflow: executing phase", "workflow_id", w.ID, "phase", def.Phase, "persona", def.Persona)
	var res *conversation.Result
	if onDelta != nil {
		res, err = o.conv.ConverseStream(ctx, string(def.Persona), enhanced, opts, onDelta)
	} else {
		res, err = o.conv.Converse(ctx, string(def.Persona), enhanced, opts)
	}
	if err != nil {
		return nil, o.fail(ctx, w, err)
	}

	now := o.now().UTC()
	step := Step{
		ID:         "step_" + ulid.Make().String(),
		Phase:      def.Phase,
		Persona:    def.Persona,
		Input:      message,
		Output:     res.Response,
		Quality:    clampScore(o.scorer.Score(def.Phase, res.Response)),
		DurationMS: now.Sub(start).Milliseconds(),
		Timestamp:  now,
		Usage:      res.Usage,
	}
	if err := o.mergeContext(w, def.Phase, step.Output, step.Quality, now); err != nil {
		slog.WarnContext(ctx, "workflow: revision diff failed", "workflow_id", w.ID, "error", err)
	}
	next := o.decideNext(w, def, &step)
	step.NextAction = &next
	w.History = append(w.History, step)
	updateProgress(w, &step)
	w.UpdatedAt = now

	if err := o.repo.Update(ctx, w); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "workflow: phase completed", "workflow_id", w.ID, "phase", step.Phase,
		"quality", step.Quality, "action", next.Action)

	o.publish(eventbus.WorkflowStepCompleted, w, string(step.Phase))
	if w.Status == StatusCompleted {
		o.publish(eventbus.WorkflowCompleted, w, w.ProjectName)
	}

	return &ExecuteResult{
		Step:       &w.History[len(w.History)-1],
		NextAction: next,
		Status: StatusInfo{
			Status:         w.Status,
			CurrentPhase:   w.CurrentPhase,
			CurrentPersona: w.CurrentPersona,
			Progress:       w.Progress,
			CanProceed:     next.CanProceed,
		},
		Suggestions: Suggestions(&step),
		Workflow:    w,
	}, nil
}

// fail marks w failed for generation errors. Cancellation and other
// errors leave the workflow untouched.
func (o *Orchestrator) fail(ctx context.Context, w *Workflow, cause error) error {
	if errors.Is(cause, context.Canceled) || !errors.Is(cause, generation.ErrGeneration) {
		return cause
	}
	slog.ErrorContext(ctx, "workflow: phase failed", "workflow_id", w.ID, "phase", w.CurrentPhase, "error", cause)
	w.Status = StatusFailed
	w.UpdatedAt = o.now().UTC()
	// The caller may have gone away; the failure is still recorded.
	if err := o.repo.Update(context.WithoutCancel(ctx), w); err != nil {
		return errors.Join(cause, err)
	}
	o.publish(eventbus.WorkflowFailed, w, cause.Error())
	return cause
}

func (o *Orchestrator) publish(t eventbus.Type, w *Workflow, payload string) {
	if o.bus == nil {
		return
	}
	o.bus.PublishNew(t, w.ID, payload, map[string]string{
		"user_id":      w.UserID,
		"project_name": w.ProjectName,
		"phase":        string(w.CurrentPhase),
	})
}

func (o *Orchestrator) enhancedMessage(w *Workflow, def Definition, message string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\n【项目信息】\n")
	fmt.Fprintf(&b, "项目名称: %s\n", w.ProjectName)
	fmt.Fprintf(&b, "当前阶段: %s\n", def.Name)
	fmt.Fprintf(&b, "原始需求: %s\n", w.Context.OriginalPrompt)

	if n := len(w.History); n > 0 {
		b.WriteString("\n【前序工作成果】\n")
		for _, s := range w.History[max(0, n-2):] {
			fmt.Fprintf(&b, "%s(%s): %s...\n", s.Persona, s.Phase, truncateRunes(s.Output, previewRunes))
		}
	}

	b.WriteString("\n【当前阶段要求】\n")
	fmt.Fprintf(&b, "阶段目标: %s\n", def.Description)
	fmt.Fprintf(&b, "预期交付: 请提供%s的具体内容\n", def.Name)
	return b.String()
}

func (o *Orchestrator) mergeContext(w *Workflow, phase Phase, output string, quality int, now time.Time) error {
	var (
		name string
		slot **Artifact
	)
	switch phase {
	case PhaseWorldbuilding:
		name, slot = "worldview", &w.Context.Worldview
	case PhasePlanning:
		name, slot = "storyline", &w.Context.Storyline
	case PhaseWriting:
		w.Context.Chapters = append(w.Context.Chapters, Chapter{
			Content:   output,
			Timestamp: now,
			Quality:   quality,
			WordCount: utf8.RuneCountInString(output),
		})
		return nil
	case PhaseAnalysis, PhaseReview, PhaseCompleted:
		return nil
	default:
		return nil
	}

	diff, err := revisionDiff(name, *slot, output, now)
	*slot = &Artifact{Content: output, Timestamp: now, Quality: quality}
	if err != nil {
		return err
	}
	if diff != "" {
		w.Context.Revisions = append(w.Context.Revisions, Revision{Phase: phase, Timestamp: now, Diff: diff})
	}
	return nil
}

// NeedsWorldbuilding reports whether a story calls for a worldbuilding phase.
func NeedsWorldbuilding(texts ...string) bool {
	for _, t := range texts {
		for _, kw := range branchKeywords {
			if strings.Contains(t, kw) {
				return true
			}
		}
	}
	return false
}

// decideNext picks the next action for step and moves w accordingly.
func (o *Orchestrator) decideNext(w *Workflow, def Definition, step *Step) NextAction {
	w.PendingChoices = nil

	if step.Quality < QualityThreshold {
		return NextAction{
			Action:        ActionRetry,
			TargetPhase:   def.Phase,
			TargetPersona: def.Persona,
			Reason:        fmt.Sprintf("当前输出质量不达标(%d%%)，建议重新执行", step.Quality),
			CanProceed:    false,
			Suggestions:   slices.Clone(retrySuggestions),
		}
	}

	if def.Phase == PhaseAnalysis {
		next, reason := PhasePlanning, "可以直接开始故事规划"
		if NeedsWorldbuilding(step.Output, step.Input, w.Context.OriginalPrompt) {
			next, reason = PhaseWorldbuilding, "需要先构建世界观设定"
		}
		return o.advance(w, next, reason)
	}

	if len(def.Next) == 1 {
		next := def.Next[0]
		if next == PhaseCompleted {
			complete(w)
			return NextAction{Action: ActionComplete, TargetPhase: PhaseCompleted, Reason: "项目创作完成"}
		}
		return o.advance(w, next, fmt.Sprintf("%s完成，进入%s阶段", def.Name, next.Name()))
	}

	w.PendingChoices = slices.Clone(def.Next)
	choices := make([]Choice, 0, len(def.Next))
	for _, p := range def.Next {
		c := Choice{Phase: p, Name: "完成", Description: "项目完成"}
		if d, ok := Lookup(p); ok {
			c.Persona, c.Name, c.Description = d.Persona, d.Name, d.Description
		}
		choices = append(choices, c)
	}
	return NextAction{Action: ActionChoose, Reason: "请选择下一步操作", CanProceed: true, Choices: choices}
}

func (o *Orchestrator) advance(w *Workflow, next Phase, reason string) NextAction {
	d := MustLookup(next)
	w.CurrentPhase = next
	w.CurrentPersona = d.Persona
	return NextAction{
		Action:        ActionProceed,
		TargetPhase:   next,
		TargetPersona: d.Persona,
		Reason:        reason,
		CanProceed:    true,
		AutoGenerate:  true,
	}
}

func complete(w *Workflow) {
	w.Status = StatusCompleted
	w.Progress.Completion = 100
}

func updateProgress(w *Workflow, step *Step) {
	bonus := 0
	if step.Quality > 80 {
		bonus = 5
	}
	w.Progress.Completion = min(w.Progress.Completion+MustLookup(step.Phase).Weight+bonus, 100)
	if w.Status == StatusCompleted {
		w.Progress.Completion = 100
	}
	w.Progress.CurrentStep = len(w.History)
	w.Progress.TotalSteps = TotalSteps

	total := 0
	for _, s := range w.History {
		total += s.Quality
	}
	w.Progress.Quality = int(math.Round(float64(total) / float64(len(w.History))))
}

// Suggestions returns follow-up hints for a finished step.
func Suggestions(step *Step) []string {
	def, ok := Lookup(step.Phase)
	if !ok {
		return nil
	}
	var out []string
	if step.Quality < 80 {
		out = append(out, fmt.Sprintf("当前%s质量为%d%%，可以考虑优化", def.Name, step.Quality))
	}
	if def.Suggestion != "" {
		out = append(out, def.Suggestion)
	}
	return out
}

// Choose resolves a pending choice of the next phase.
func (o *Orchestrator) Choose(ctx context.Context, id string, phase Phase) (*Workflow, NextAction, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	w, err := o.Executable(ctx, id)
	if err != nil {
		return nil, NextAction{}, err
	}
	if len(w.PendingChoices) == 0 {
		return nil, NextAction{}, cerr.NewError(cerr.FailedPrecondition, "当前没有待选择的下一步", nil)
	}
	if !phase.Target() || !slices.Contains(w.PendingChoices, phase) {
		return nil, NextAction{}, invalidInput(fmt.Sprintf("无效的阶段选择: %s", phase))
	}

	w.PendingChoices = nil
	var next NextAction
	if phase == PhaseCompleted {
		complete(w)
		next = NextAction{Action: ActionComplete, TargetPhase: PhaseCompleted, Reason: "项目创作完成"}
	} else {
		next = o.advance(w, phase, fmt.Sprintf("进入%s阶段", phase.Name()))
	}
	w.UpdatedAt = o.now().UTC()
	if err := o.repo.Update(ctx, w); err != nil {
		return nil, NextAction{}, err
	}
	if w.Status == StatusCompleted {
		o.publish(eventbus.WorkflowCompleted, w, w.ProjectName)
	}
	return w, next, nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*Workflow, error) {
	return o.repo.Get(ctx, id)
}

func (o *Orchestrator) Info(ctx context.Context, id string) (*Info, error) {
	w, err := o.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.Info(), nil
}

// ListByUser returns the user's workflows, most recently updated first.
func (o *Orchestrator) ListByUser(ctx context.Context, userID string) ([]*Info, error) {
	if userID == "" {
		return nil, invalidInput("用户ID不能为空")
	}
	list, err := o.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b *Workflow) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	out := make([]*Info, 0, len(list))
	for _, w := range list {
		out = append(out, w.Info())
	}
	return out, nil
}
