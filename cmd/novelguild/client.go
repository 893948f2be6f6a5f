package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"connectrpc.com/connect"
	"github.com/fatih/color"

	novelguildv1 "github.com/kazz187/novelguild/api/novelguild/v1"
	"github.com/kazz187/novelguild/api/novelguild/v1/novelguildv1connect"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
)

type client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	personas   novelguildv1connect.PersonaServiceClient
	workflows  novelguildv1connect.WorkflowServiceClient
	out        io.Writer
}

func newClient(baseURL, apiKey string) *client {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := http.DefaultClient
	opts := connect.WithInterceptors(apiKeyInterceptor(apiKey))
	return &client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		personas:   novelguildv1connect.NewPersonaServiceClient(httpClient, baseURL, opts),
		workflows:  novelguildv1connect.NewWorkflowServiceClient(httpClient, baseURL, opts),
		out:        os.Stdout,
	}
}

func apiKeyInterceptor(key string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("X-API-Key", key)
			return next(ctx, req)
		}
	}
}

func (c *client) listPersonas(ctx context.Context) error {
	res, err := c.personas.ListPersonas(ctx, connect.NewRequest(&novelguildv1.ListPersonasRequest{}))
	if err != nil {
		return err
	}
	for _, p := range res.Msg.Personas {
		status := okColor.Sprint("ready")
		if !p.Available {
			status = warnColor.Sprintf("unavailable: %s", p.Error)
		}
		fmt.Fprintf(c.out, "%s %-16s %s  %s\n", p.Icon, p.Id, titleColor.Sprint(p.Name), status)
		fmt.Fprintf(c.out, "   %s\n", dimColor.Sprint(p.Description))
	}
	return nil
}

func (c *client) chat(ctx context.Context, personaID, message, scenario, project string) error {
	res, err := c.personas.Chat(ctx, connect.NewRequest(&novelguildv1.ChatRequest{
		PersonaId: personaID,
		Message:   message,
		Options:   &novelguildv1.ChatOptions{Scenario: scenario, ProjectInfo: project},
	}))
	if err != nil {
		return err
	}
	r := res.Msg.Reply
	fmt.Fprintf(c.out, "%s %s %s\n\n", r.PersonaIcon, titleColor.Sprint(r.PersonaName), dimColor.Sprintf("[%s]", r.ScenarioLabel))
	fmt.Fprintln(c.out, r.Response)
	fmt.Fprintln(c.out, dimColor.Sprintf("\ntokens: %d", r.Usage.TotalTokens))
	return nil
}

func (c *client) startWorkflow(ctx context.Context, userID, project, prompt string) error {
	res, err := c.workflows.StartWorkflow(ctx, connect.NewRequest(&novelguildv1.StartWorkflowRequest{
		UserId:        userID,
		ProjectName:   project,
		InitialPrompt: prompt,
	}))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "workflow %s\n\n", titleColor.Sprint(res.Msg.WorkflowId))
	c.printPhaseResult(res.Msg.Result)
	return nil
}

func (c *client) executePhase(ctx context.Context, id, message string) error {
	res, err := c.workflows.ExecutePhase(ctx, connect.NewRequest(&novelguildv1.ExecutePhaseRequest{
		WorkflowId: id,
		Message:    message,
	}))
	if err != nil {
		return err
	}
	c.printPhaseResult(res.Msg.Result)
	return nil
}

func (c *client) choosePhase(ctx context.Context, id, phase string) error {
	res, err := c.workflows.ChoosePhase(ctx, connect.NewRequest(&novelguildv1.ChoosePhaseRequest{
		WorkflowId: id,
		Phase:      phase,
	}))
	if err != nil {
		return err
	}
	c.printNextAction(res.Msg.NextAction)
	c.printSummary(res.Msg.Workflow)
	return nil
}

func (c *client) showWorkflow(ctx context.Context, id string) error {
	res, err := c.workflows.GetWorkflow(ctx, connect.NewRequest(&novelguildv1.GetWorkflowRequest{WorkflowId: id}))
	if err != nil {
		return err
	}
	w := res.Msg.Workflow
	fmt.Fprintf(c.out, "%s  %s\n", titleColor.Sprint(w.ProjectName), dimColor.Sprint(w.Id))
	fmt.Fprintf(c.out, "status: %s  phase: %s  persona: %s\n", w.Status, w.CurrentPhase, w.CurrentPersona)
	c.printProgress(w.Progress)
	for i, st := range w.History {
		fmt.Fprintf(c.out, "\n#%d %s (%s) quality %d\n", i+1, titleColor.Sprint(st.Phase), st.PersonaId, st.Quality)
		fmt.Fprintln(c.out, st.Output)
	}
	if len(w.PendingChoices) > 0 {
		fmt.Fprintf(c.out, "\npending choices: %s\n", strings.Join(w.PendingChoices, ", "))
	}
	return nil
}

func (c *client) listWorkflows(ctx context.Context, userID string) error {
	res, err := c.workflows.ListWorkflows(ctx, connect.NewRequest(&novelguildv1.ListWorkflowsRequest{UserId: userID}))
	if err != nil {
		return err
	}
	if len(res.Msg.Workflows) == 0 {
		fmt.Fprintln(c.out, "no workflows")
		return nil
	}
	for _, w := range res.Msg.Workflows {
		c.printSummary(w)
	}
	return nil
}

func (c *client) printPhaseResult(r *novelguildv1.PhaseResult) {
	if st := r.Step; st != nil {
		fmt.Fprintf(c.out, "%s (%s) quality %d\n\n", titleColor.Sprint(st.Phase), st.PersonaId, st.Quality)
		fmt.Fprintln(c.out, st.Output)
		fmt.Fprintln(c.out)
	}
	c.printNextAction(r.NextAction)
	if r.Status != nil {
		c.printProgress(r.Status.Progress)
	}
}

func (c *client) printNextAction(n *novelguildv1.NextAction) {
	if n == nil {
		return
	}
	line := fmt.Sprintf("next: %s", n.Action)
	if n.TargetPhase != "" {
		line += " -> " + n.TargetPhase
	}
	if n.CanProceed {
		fmt.Fprintln(c.out, okColor.Sprint(line), n.Reason)
	} else {
		fmt.Fprintln(c.out, warnColor.Sprint(line), n.Reason)
	}
	for _, ch := range n.Choices {
		fmt.Fprintf(c.out, "  - %-14s %s\n", ch.Phase, dimColor.Sprint(ch.Description))
	}
	for _, s := range n.Suggestions {
		fmt.Fprintf(c.out, "  * %s\n", s)
	}
}

func (c *client) printProgress(p *novelguildv1.Progress) {
	if p == nil {
		return
	}
	fmt.Fprintln(c.out, dimColor.Sprintf("progress %d%%  step %d/%d  quality %d", p.Completion, p.CurrentStep, p.TotalSteps, p.Quality))
}

func (c *client) printSummary(w *novelguildv1.WorkflowSummary) {
	if w == nil {
		return
	}
	completion := int32(0)
	if w.Progress != nil {
		completion = w.Progress.Completion
	}
	fmt.Fprintf(c.out, "%s  %-10s %-14s %3d%%  %s\n", w.Id, w.Status, w.CurrentPhase, completion, dimColor.Sprint(w.UpdatedAt.Local().Format("2006-01-02 15:04")))
}
