package prompt

import (
	"regexp"
	"slices"
	"strings"
)

// Section names a recognized block of a persona document.
type Section string

// Tagged document vocabulary.
const (
	SectionPersona     Section = "persona"
	SectionExpertise   Section = "expertise"
	SectionMethodology Section = "methodology"
	SectionThinking    Section = "thinking"
	SectionConstraints Section = "constraints"
	SectionInteraction Section = "interaction"
	SectionKnowledge   Section = "knowledge"
	SectionTools       Section = "tools"
	SectionMemory      Section = "memory"
	SectionEvolution   Section = "evolution"
	SectionExamples    Section = "examples"
	SectionFramework   Section = "framework"
	SectionStyle       Section = "style"
	SectionTechniques  Section = "techniques"
	SectionPatterns    Section = "patterns"
	SectionRevision    Section = "revision"
	SectionInspiration Section = "inspiration"
	SectionPerspective Section = "perspective"
	SectionStrategy    Section = "strategy"
	SectionGuidance    Section = "guidance"
	SectionMetrics     Section = "metrics"
)

// Structured heading document sections. Interaction is shared with the
// tagged vocabulary.
const (
	SectionRole      Section = "role"
	SectionWorkflow  Section = "oes"
	SectionOutput    Section = "output"
	SectionPrinciple Section = "principle"
)

var tagDescriptions = map[Section]string{
	SectionPersona:     "角色人格设定",
	SectionExpertise:   "专业能力领域",
	SectionMethodology: "工作方法论",
	SectionThinking:    "思维模式",
	SectionConstraints: "工作边界约束",
	SectionInteraction: "交互风格",
	SectionKnowledge:   "知识储备",
	SectionTools:       "工具和框架",
	SectionMemory:      "记忆管理策略",
	SectionEvolution:   "持续优化机制",
	SectionExamples:    "示例回答",
	SectionFramework:   "分析框架",
	SectionStyle:       "风格特征",
	SectionTechniques:  "技巧库",
	SectionPatterns:    "模式库",
	SectionRevision:    "修改原则",
	SectionInspiration: "灵感源泉",
	SectionPerspective: "多维视角",
	SectionStrategy:    "战略工具",
	SectionGuidance:    "指导原则",
	SectionMetrics:     "成功指标",
}

// Description returns the human readable purpose of a tagged section.
func (s Section) Description() string {
	return tagDescriptions[s]
}

// IsTag reports whether s belongs to the tagged vocabulary.
func (s Section) IsTag() bool {
	_, ok := tagDescriptions[s]
	return ok
}

type Format int

const (
	FormatTagged Format = iota + 1
	FormatStructured
)

func (f Format) String() string {
	switch f {
	case FormatTagged:
		return "tagged"
	case FormatStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Document is a parsed persona prompt.
type Document struct {
	Title    string
	Subtitle string
	Sections map[Section]string
	// Extra holds "## heading" blocks outside any tag, keyed by the
	// lowercased heading with whitespace replaced by underscores.
	Extra  map[string]string
	Raw    string
	Format Format
	// Degraded is set when a tagged document has no recognized section.
	// Such documents compose as their cleaned raw text.
	Degraded bool
}

// SectionNames returns the recognized section keys, sorted.
func (d *Document) SectionNames() []string {
	names := make([]string, 0, len(d.Sections))
	for s := range d.Sections {
		names = append(names, string(s))
	}
	slices.Sort(names)
	return names
}

const structuredMarker = "## OES工作流程"

var (
	titlePattern   = regexp.MustCompile(`(?m)^#[ \t]+(.+?)(?:[ \t]+-[ \t]+(.+?))?[ \t]*$`)
	openTagPattern = regexp.MustCompile(`<(\w+)>`)
	headingPattern = regexp.MustCompile(`^##[ \t]+(.+)$`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// Parse detects the document format and extracts its sections.
func Parse(raw string) *Document {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	doc := &Document{
		Sections: make(map[Section]string),
		Extra:    make(map[string]string),
		Raw:      raw,
	}
	if m := titlePattern.FindStringSubmatch(raw); m != nil {
		doc.Title = strings.TrimSpace(m[1])
		doc.Subtitle = strings.TrimSpace(m[2])
	}

	if strings.Contains(raw, structuredMarker) {
		doc.Format = FormatStructured
		parseStructured(doc, raw)
		return doc
	}

	doc.Format = FormatTagged
	rest := parseTags(doc, raw)
	parseExtra(doc, rest)
	doc.Degraded = len(doc.Sections) == 0
	return doc
}

// parseTags extracts <tag>...</tag> blocks whose closing tag matches the
// opening one. An opening tag without a matching close is skipped. Unknown
// tags are consumed but not recorded. It returns raw with every matched
// block removed.
func parseTags(doc *Document, raw string) string {
	var rest strings.Builder
	pos, copied := 0, 0
	for pos < len(raw) {
		loc := openTagPattern.FindStringSubmatchIndex(raw[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		name := raw[pos+loc[2] : pos+loc[3]]
		bodyStart := pos + loc[1]

		closeTag := "</" + name + ">"
		n := strings.Index(raw[bodyStart:], closeTag)
		if n < 0 {
			pos = start + 1
			continue
		}
		bodyEnd := bodyStart + n
		if s := Section(name); s.IsTag() {
			doc.Sections[s] = cleanContent(raw[bodyStart:bodyEnd])
		}

		rest.WriteString(raw[copied:start])
		pos = bodyEnd + len(closeTag)
		copied = pos
	}
	rest.WriteString(raw[copied:])
	return rest.String()
}

func parseExtra(doc *Document, rest string) {
	var (
		key   string
		lines []string
	)
	flush := func() {
		if key != "" {
			doc.Extra[key] = cleanContent(strings.Join(lines, "\n"))
		}
	}
	for _, line := range strings.Split(rest, "\n") {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flush()
			key = spacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(m[1])), "_")
			lines = lines[:0]
			continue
		}
		if key != "" {
			lines = append(lines, line)
		}
	}
	flush()
}

func parseStructured(doc *Document, raw string) {
	blocks := []struct {
		section     Section
		heading     string
		terminators []string
	}{
		{SectionRole, "## 角色定位", []string{"##"}},
		{SectionWorkflow, structuredMarker, []string{"## 交互模式"}},
		{SectionInteraction, "## 交互模式", []string{"## 输出格式"}},
		{SectionOutput, "## 输出格式", []string{"## 工作原则", "## 工作技法库", "## 管理工具"}},
		{SectionPrinciple, "## 工作原则", []string{"##"}},
	}
	for _, b := range blocks {
		if body, ok := between(raw, b.heading, b.terminators); ok {
			doc.Sections[b.section] = body
		}
	}
}

// between returns the text after the first occurrence of heading up to the
// nearest terminator, or the end of raw.
func between(raw, heading string, terminators []string) (string, bool) {
	i := strings.Index(raw, heading)
	if i < 0 {
		return "", false
	}
	body := raw[i+len(heading):]
	end := len(body)
	for _, t := range terminators {
		if j := strings.Index(body, t); j >= 0 && j < end {
			end = j
		}
	}
	return strings.TrimSpace(body[:end]), true
}

// cleanContent trims every line and drops empty ones.
func cleanContent(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
