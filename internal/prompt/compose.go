package prompt

import (
	"strings"

	"github.com/kazz187/novelguild/internal/persona"
)

// ComposeContext carries the per-request blocks appended to a persona's
// instructions. Empty fields are omitted.
type ComposeContext struct {
	ProjectInfo   string
	CurrentFile   string
	RecentHistory string
}

type labeled struct {
	section Section
	label   string
}

var coreOrder = []labeled{
	{SectionPersona, "角色设定"},
	{SectionExpertise, "专业能力"},
	{SectionThinking, "思维方式"},
	{SectionMethodology, "工作方法"},
	{SectionConstraints, "约束条件"},
	{SectionInteraction, "交互风格"},
}

// Emphasis returns the sections a scenario brings forward.
func Emphasis(scenario persona.Scenario) []Section {
	switch scenario {
	case persona.ScenarioBrainstorming:
		return []Section{SectionInspiration, SectionExamples, SectionPatterns}
	case persona.ScenarioReview:
		return []Section{SectionConstraints, SectionMetrics, SectionRevision}
	case persona.ScenarioProblemSolving:
		return []Section{SectionMethodology, SectionFramework, SectionStrategy}
	case persona.ScenarioCreation:
		return []Section{SectionTechniques, SectionStyle, SectionExamples}
	default:
		return []Section{SectionExpertise, SectionThinking, SectionInteraction}
	}
}

func writeBlock(b *strings.Builder, label, content string) {
	if content == "" {
		return
	}
	b.WriteString("【")
	b.WriteString(label)
	b.WriteString("】\n")
	b.WriteString(content)
	b.WriteString("\n\n")
}

// Compose renders the document as system instructions. The output depends
// only on the document, the scenario and cc.
func (d *Document) Compose(scenario persona.Scenario, cc ComposeContext) string {
	var b strings.Builder
	switch {
	case d.Format == FormatStructured:
		d.composeStructured(&b, cc)
	case d.Degraded:
		if raw := cleanContent(d.Raw); raw != "" {
			b.WriteString(raw)
			b.WriteString("\n\n")
		}
		writeContext(&b, cc, "项目信息", "当前工作文件")
	default:
		d.composeTagged(&b, scenario, cc)
	}
	return b.String()
}

func (d *Document) composeTagged(b *strings.Builder, scenario persona.Scenario, cc ComposeContext) {
	emitted := make(map[Section]bool, len(coreOrder))
	for _, l := range coreOrder {
		writeBlock(b, l.label, d.Sections[l.section])
		emitted[l.section] = true
	}
	for _, s := range Emphasis(scenario) {
		if emitted[s] {
			continue
		}
		emitted[s] = true
		writeBlock(b, "重点·"+s.Description(), d.Sections[s])
	}
	writeContext(b, cc, "项目信息", "当前工作文件")
	writeBlock(b, "记忆策略", d.Sections[SectionMemory])
}

func (d *Document) composeStructured(b *strings.Builder, cc ComposeContext) {
	for _, s := range []Section{SectionRole, SectionWorkflow} {
		if v := d.Sections[s]; v != "" {
			b.WriteString(v)
			b.WriteString("\n\n")
		}
	}
	writeBlock(b, "交互指南", d.Sections[SectionInteraction])
	writeBlock(b, "工作原则", d.Sections[SectionPrinciple])
	writeContext(b, cc, "项目上下文", "当前文件")
}

func writeContext(b *strings.Builder, cc ComposeContext, projectLabel, fileLabel string) {
	writeBlock(b, projectLabel, cc.ProjectInfo)
	writeBlock(b, fileLabel, cc.CurrentFile)
	writeBlock(b, "最近对话", cc.RecentHistory)
}
