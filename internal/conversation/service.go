package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kazz187/novelguild/internal/generation"
	"github.com/kazz187/novelguild/internal/persona"
	"github.com/kazz187/novelguild/internal/prompt"
	"github.com/kazz187/novelguild/pkg/cerr"
)

const (
	MaxMessageRunes  = 4000
	DefaultMaxTokens = 2048

	promptTimeLayout = "2006-01-02 15:04:05"
)

var ErrInvalidMessage = cerr.NewError(cerr.InvalidArgument, "invalid message", nil)

// ValidateMessage rejects empty messages and messages longer than MaxMessageRunes.
func ValidateMessage(msg string) error {
	return validateMessage(msg, MaxMessageRunes)
}

func validateMessage(msg string, limit int) error {
	switch {
	case strings.TrimSpace(msg) == "":
		return cerr.NewError(cerr.InvalidArgument, "消息内容不能为空", ErrInvalidMessage).
			AddDetailMessageWithCode("消息内容不能为空", "message.required")
	case utf8.RuneCountInString(msg) > limit:
		text := fmt.Sprintf("消息长度不能超过%d字符", limit)
		return cerr.NewError(cerr.InvalidArgument, text, ErrInvalidMessage).
			AddDetailMessageWithCode(text, "message.max_len")
	}
	return nil
}

// FileContext describes the file the user is working on.
type FileContext struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Preview string `json:"preview"`
}

type Options struct {
	Scenario    persona.Scenario
	CurrentFile *FileContext
	// ProjectInfo is the project path or name.
	ProjectInfo string
	// Note is a free form cross project note appended to the project block.
	Note        string
	MaxTokens   int
	Temperature *float64
	// MessageLimit replaces MaxMessageRunes for callers that embed extra
	// context in the message.
	MessageLimit int
}

type ContextInfo struct {
	HasHistory     bool             `json:"hasHistory"`
	HasProjectInfo bool             `json:"hasProjectInfo"`
	Scenario       persona.Scenario `json:"scenario"`
}

type Result struct {
	PersonaID     persona.ID       `json:"roleId"`
	PersonaName   string           `json:"roleName"`
	PersonaIcon   string           `json:"roleIcon"`
	Scenario      persona.Scenario `json:"scenario"`
	ScenarioLabel string           `json:"scenarioLabel"`
	UserMessage   string           `json:"userMessage"`
	Response      string           `json:"aiResponse"`
	Timestamp     time.Time        `json:"timestamp"`
	Usage         generation.Usage `json:"tokenUsage"`
	Context       ContextInfo      `json:"context"`
}

// InstructionLoader yields the composed prompt material of a persona.
type InstructionLoader interface {
	Load(ctx context.Context, p *persona.Persona) (*prompt.Instructions, error)
	InvalidateAll()
}

type Service struct {
	registry  *persona.Registry
	loader    InstructionLoader
	generator generation.Generator
	history   HistoryRepository
	now       func() time.Time
}

func NewService(registry *persona.Registry, loader InstructionLoader, generator generation.Generator, history HistoryRepository) *Service {
	return &Service{
		registry:  registry,
		loader:    loader,
		generator: generator,
		history:   history,
		now:       time.Now,
	}
}

func (s *Service) Registry() *persona.Registry {
	return s.registry
}

// Converse sends message to a persona and records the exchange.
func (s *Service) Converse(ctx context.Context, personaID, message string, opts Options) (*Result, error) {
	return s.converse(ctx, personaID, message, opts, nil)
}

// ConverseStream behaves like Converse but forwards generated text to
// onDelta as it arrives. History is only written when the stream completes.
func (s *Service) ConverseStream(ctx context.Context, personaID, message string, opts Options, onDelta func(string) error) (*Result, error) {
	return s.converse(ctx, personaID, message, opts, onDelta)
}

type prepared struct {
	persona *persona.Persona
	request *generation.Request
	info    ContextInfo
}

// Validate resolves the persona and checks the message. It has no side effects.
func (s *Service) Validate(personaID, message string, opts Options) (*persona.Persona, error) {
	p, err := s.registry.Get(personaID)
	if err != nil {
		return nil, err
	}
	limit := opts.MessageLimit
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	if err := validateMessage(message, limit); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) prepare(ctx context.Context, personaID, message string, opts Options) (*prepared, error) {
	p, err := s.Validate(personaID, message, opts)
	if err != nil {
		return nil, err
	}
	in, err := s.loader.Load(ctx, p)
	if err != nil {
		return nil, err
	}
	recent, err := s.history.Recent(ctx, p.ID, ContextEntries)
	if err != nil {
		return nil, err
	}

	scenario := persona.ParseScenario(string(opts.Scenario))
	cc := prompt.ComposeContext{
		ProjectInfo:   projectBlock(opts),
		CurrentFile:   fileBlock(opts.CurrentFile),
		RecentHistory: historyBlock(recent),
	}
	system := in.Compose(scenario, cc)

	temperature := persona.Temperature(p.ID, scenario)
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &prepared{
		persona: p,
		request: &generation.Request{
			Prompt: s.fullPrompt(system, message),
			Config: generation.Config{Temperature: temperature, MaxOutputTokens: maxTokens},
		},
		info: ContextInfo{
			HasHistory:     len(recent) > 0,
			HasProjectInfo: cc.ProjectInfo != "",
			Scenario:       scenario,
		},
	}, nil
}

func (s *Service) converse(ctx context.Context, personaID, message string, opts Options, onDelta func(string) error) (*Result, error) {
	pr, err := s.prepare(ctx, personaID, message, opts)
	if err != nil {
		return nil, err
	}

	var resp *generation.Response
	if onDelta != nil {
		resp, err = s.generator.Stream(ctx, pr.request, onDelta)
	} else {
		resp, err = s.generator.Generate(ctx, pr.request)
	}
	if err != nil {
		slog.WarnContext(ctx, "conversation: generation failed", "persona", pr.persona.ID, "error", err)
		return nil, generation.Wrap(err)
	}

	ts := resp.Timestamp
	if ts.IsZero() {
		ts = s.now().UTC()
	}
	entry := Entry{
		Timestamp: ts,
		User:      truncateRunes(message, PreviewRunes),
		Assistant: truncateRunes(resp.Text, PreviewRunes),
		Scenario:  pr.info.Scenario,
		Tokens:    utf8.RuneCountInString(message) + utf8.RuneCountInString(resp.Text),
	}
	if err := s.history.Append(ctx, pr.persona.ID, entry); err != nil {
		return nil, err
	}

	return &Result{
		PersonaID:     pr.persona.ID,
		PersonaName:   pr.persona.Name,
		PersonaIcon:   pr.persona.Icon,
		Scenario:      pr.info.Scenario,
		ScenarioLabel: pr.info.Scenario.Label(),
		UserMessage:   message,
		Response:      resp.Text,
		Timestamp:     ts,
		Usage:         resp.Usage,
		Context:       pr.info,
	}, nil
}

func (s *Service) fullPrompt(system, message string) string {
	return fmt.Sprintf("%s\n【当前时间】%s\n\n【用户问题】\n%s\n\n请以你的专业身份，提供详细且有帮助的回答。",
		system, s.now().Format(promptTimeLayout), message)
}

func projectBlock(opts Options) string {
	var parts []string
	if opts.ProjectInfo != "" {
		parts = append(parts, "项目路径: "+opts.ProjectInfo)
	}
	if opts.Note != "" {
		parts = append(parts, "备注: "+opts.Note)
	}
	return strings.Join(parts, "\n")
}

func fileBlock(f *FileContext) string {
	if f == nil || f.Path == "" {
		return ""
	}
	preview := f.Preview
	if preview == "" {
		preview = "无"
	}
	return fmt.Sprintf("文件: %s\n类型: %s\n内容预览: %s", f.Path, f.Type, preview)
}

func historyBlock(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("用户: %s\nAI: %s", e.User, e.Assistant))
	}
	return strings.Join(parts, "\n---\n")
}
