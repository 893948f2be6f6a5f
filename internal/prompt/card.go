package prompt

import (
	"regexp"
	"strings"

	"github.com/kazz187/novelguild/internal/persona"
)

// Example is a sample exchange from a document's examples section.
type Example struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

var (
	exampleSplit  = regexp.MustCompile(`###\s*当用户`)
	exampleHeader = regexp.MustCompile(`^###\s*当用户.*?[问说要求].*?[：:]\s*["“](.+?)["”]\s*((?s:.*))$`)
	listItem      = regexp.MustCompile(`^[-•]\s+`)
	keyPoint      = regexp.MustCompile(`^[-•]\s*([\p{L}\p{N}_]+)[：:]\s*(.+)`)
)

// ExtractExamples returns the question and answer pairs written as
// `### 当用户问："..."` blocks.
func ExtractExamples(doc *Document) []Example {
	src := doc.Sections[SectionExamples]
	if src == "" {
		return nil
	}
	starts := exampleSplit.FindAllStringIndex(src, -1)
	var out []Example
	for i, loc := range starts {
		end := len(src)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		m := exampleHeader.FindStringSubmatch(src[loc[0]:end])
		if m == nil {
			continue
		}
		out = append(out, Example{Question: m[1], Answer: cleanContent(m[2])})
	}
	return out
}

// Card summarizes a persona document for listings.
type Card struct {
	ID           persona.ID        `json:"id"`
	Name         string            `json:"name"`
	Subtitle     string            `json:"subtitle"`
	Description  string            `json:"description"`
	Expertise    []string          `json:"expertise"`
	Style        map[string]string `json:"style"`
	Capabilities int               `json:"capabilities"`
}

func NewCard(id persona.ID, doc *Document) Card {
	desc := firstLine(doc.Sections[SectionPersona])
	if desc == "" {
		desc = firstLine(doc.Sections[SectionRole])
	}
	return Card{
		ID:           id,
		Name:         doc.Title,
		Subtitle:     doc.Subtitle,
		Description:  desc,
		Expertise:    ExtractList(doc.Sections[SectionExpertise]),
		Style:        ExtractKeyPoints(doc.Sections[SectionInteraction]),
		Capabilities: len(doc.Sections),
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// ExtractList returns the bullet items of s, each cut at the first full
// width colon.
func ExtractList(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if !listItem.MatchString(line) {
			continue
		}
		item, _, _ := strings.Cut(listItem.ReplaceAllString(line, ""), "：")
		out = append(out, item)
	}
	return out
}

// ExtractKeyPoints returns "- key：value" bullets as a map.
func ExtractKeyPoints(s string) map[string]string {
	points := map[string]string{}
	for _, line := range strings.Split(s, "\n") {
		if m := keyPoint.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			points[m[1]] = m[2]
		}
	}
	return points
}
