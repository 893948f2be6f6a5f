package prompt

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind classifies a module reference.
type Kind string

const (
	KindThought   Kind = "thought"
	KindExecution Kind = "execution"
	KindKnowledge Kind = "knowledge"
	KindFile      Kind = "file"
	KindUnknown   Kind = "unknown"
)

// Reference is one `@` line of a role definition, for example
// `@!thought://creative-thinking`. A `!` marks the module as required.
type Reference struct {
	Raw      string
	Kind     Kind
	Name     string
	Required bool
}

func ParseReference(line string) Reference {
	line = strings.TrimSpace(line)
	ref := Reference{
		Raw:      line,
		Kind:     KindUnknown,
		Required: strings.Contains(line, "@!"),
	}
	switch {
	case strings.Contains(line, "thought://"):
		ref.Kind = KindThought
	case strings.Contains(line, "execution://"):
		ref.Kind = KindExecution
	case strings.Contains(line, "knowledge://"):
		ref.Kind = KindKnowledge
	case strings.Contains(line, "file://"):
		ref.Kind = KindFile
	}
	parts := strings.Split(line, "//")
	name := strings.ReplaceAll(parts[len(parts)-1], "@!", "")
	ref.Name = strings.TrimSpace(strings.TrimPrefix(name, "@"))
	return ref
}

type Identity struct {
	Name        string
	Title       string
	Description string
}

// RoleDefinition is a parsed `<role>.role.md` file.
type RoleDefinition struct {
	Identity    Identity
	Personality []Reference
	Principle   []Reference
	Knowledge   []Reference
	Raw         string
}

var (
	identityBlock    = regexp.MustCompile(`(?s)<identity>(.*?)</identity>`)
	personalityBlock = regexp.MustCompile(`(?s)<personality>(.*?)</personality>`)
	principleBlock   = regexp.MustCompile(`(?s)<principle>(.*?)</principle>`)
	knowledgeBlock   = regexp.MustCompile(`(?s)<knowledge>(.*?)</knowledge>`)
	nameField        = regexp.MustCompile(`<name>(.*?)</name>`)
	titleField       = regexp.MustCompile(`<title>(.*?)</title>`)
	descriptionField = regexp.MustCompile(`(?s)<description>(.*?)</description>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

func ParseRoleDefinition(raw string) *RoleDefinition {
	def := &RoleDefinition{Raw: raw}
	if m := identityBlock.FindStringSubmatch(raw); m != nil {
		def.Identity.Name = submatch(nameField, m[1])
		def.Identity.Title = submatch(titleField, m[1])
		def.Identity.Description = submatch(descriptionField, m[1])
	}
	def.Personality = references(personalityBlock, raw)
	def.Principle = references(principleBlock, raw)
	def.Knowledge = references(knowledgeBlock, raw)
	return def
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func references(block *regexp.Regexp, raw string) []Reference {
	m := block.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	var refs []Reference
	for _, line := range strings.Split(m[1], "\n") {
		if line = strings.TrimSpace(line); strings.HasPrefix(line, "@") {
			refs = append(refs, ParseReference(line))
		}
	}
	return refs
}

// ResolvedModule is a module whose content was found at Location.
type ResolvedModule struct {
	Name     string
	Kind     Kind
	Content  string
	Location string
}

// ModularRole is a role definition with its modules resolved.
type ModularRole struct {
	Definition *RoleDefinition
	Thought    []ResolvedModule
	Execution  []ResolvedModule
	Knowledge  []ResolvedModule
}

func (r *ModularRole) modules() []ResolvedModule {
	all := make([]ResolvedModule, 0, len(r.Thought)+len(r.Execution)+len(r.Knowledge))
	all = append(all, r.Thought...)
	all = append(all, r.Execution...)
	return append(all, r.Knowledge...)
}

// Compose renders the role followed by the context blocks.
func (r *ModularRole) Compose(cc ComposeContext) string {
	var b strings.Builder
	id := r.Definition.Identity
	if id.Name != "" {
		b.WriteString("【角色身份】" + id.Name + "\n")
		if id.Title != "" {
			b.WriteString("【专业头衔】" + id.Title + "\n")
		}
		if id.Description != "" {
			b.WriteString("【角色描述】\n" + id.Description + "\n\n")
		}
	}
	groups := []struct {
		label   string
		modules []ResolvedModule
	}{
		{"【思维模式】\n", r.Thought},
		{"\n【执行原则】\n", r.Execution},
		{"\n【专业知识】\n", r.Knowledge},
	}
	for _, g := range groups {
		if len(g.modules) == 0 {
			continue
		}
		b.WriteString(g.label)
		for _, m := range g.modules {
			b.WriteString("\n## " + m.Name + "\n")
			b.WriteString(Digest(m.Content, DigestLimit))
			b.WriteString("\n")
		}
	}
	if b.Len() > 0 && (cc.ProjectInfo != "" || cc.CurrentFile != "" || cc.RecentHistory != "") {
		b.WriteString("\n")
	}
	writeContext(&b, cc, "项目信息", "当前工作文件")
	return b.String()
}

// Capabilities returns the module names with dashes turned into spaces,
// without duplicates, in module order.
func (r *ModularRole) Capabilities() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range r.modules() {
		c := strings.ReplaceAll(m.Name, "-", " ")
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

type ModuleCounts struct {
	Thought   int `json:"thought"`
	Execution int `json:"execution"`
	Knowledge int `json:"knowledge"`
}

type ModularCard struct {
	Name         string       `json:"name"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Capabilities int          `json:"capabilities"`
	Modules      ModuleCounts `json:"modules"`
}

func (r *ModularRole) Card() ModularCard {
	id := r.Definition.Identity
	name := id.Name
	if name == "" {
		name = "未命名角色"
	}
	return ModularCard{
		Name:         name,
		Title:        id.Title,
		Description:  id.Description,
		Capabilities: len(r.Capabilities()),
		Modules: ModuleCounts{
			Thought:   len(r.Thought),
			Execution: len(r.Execution),
			Knowledge: len(r.Knowledge),
		},
	}
}

// DigestLimit bounds the characters a single module contributes.
const DigestLimit = 500

// Digest keeps the bullet and key-value lines of a module, stopping once
// more than limit characters have been collected.
func Digest(content string, limit int) string {
	var (
		points []string
		n      int
	)
	for _, line := range strings.Split(xmlTag.ReplaceAllString(content, ""), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") &&
			!strings.HasPrefix(line, "1.") && !strings.Contains(line, "：") {
			continue
		}
		points = append(points, line)
		n += utf8.RuneCountInString(line)
		if n > limit {
			break
		}
	}
	return strings.Join(points, "\n")
}
