package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

const claudeSystemPrompt = "You are a long-form fiction writing collaborator. Follow the instructions in the prompt and answer in the language of the request."

// ClaudeGenerator runs prompts through the Claude agent CLI. It has no
// incremental output, so Stream emits the whole answer as one delta.
type ClaudeGenerator struct {
	maxTurns int
	cwd      string
	now      func() time.Time
}

func NewClaudeGenerator(maxTurns int, cwd string) *ClaudeGenerator {
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &ClaudeGenerator{maxTurns: maxTurns, cwd: cwd, now: time.Now}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	maxTurns := g.maxTurns
	opts := &claudeagent.ClaudeAgentOptions{
		SystemPrompt: claudeSystemPrompt,
		Cwd:          g.cwd,
		MaxTurns:     &maxTurns,
	}
	result, err := claudeagent.RunQuerySync(ctx, req.Prompt, opts)
	if err != nil {
		return nil, err
	}
	if result.Result == nil {
		return nil, ErrEmptyResponse
	}
	if result.Result.IsError {
		return nil, errors.New(strings.TrimSpace(result.Result.Result))
	}
	text := strings.TrimSpace(result.Result.Result)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{
		Text: text,
		// The CLI result carries no token counts; approximate with rune counts.
		Usage: Usage{
			InputTokens:  len([]rune(req.Prompt)),
			OutputTokens: len([]rune(text)),
			TotalTokens:  len([]rune(req.Prompt)) + len([]rune(text)),
		},
		Timestamp: g.now().UTC(),
	}, nil
}

func (g *ClaudeGenerator) Stream(ctx context.Context, req *Request, onDelta func(string) error) (*Response, error) {
	resp, err := g.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := onDelta(resp.Text); err != nil {
		return nil, err
	}
	return resp, nil
}
