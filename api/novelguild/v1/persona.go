// Package novelguildv1 holds the request and response messages of the
// novelguild.v1 services. Messages travel as JSON.
package novelguildv1

import "time"

type Persona struct {
	Id           string   `json:"id"`
	Name         string   `json:"name"`
	Icon         string   `json:"icon"`
	Color        string   `json:"color"`
	Description  string   `json:"description"`
	ContentAreas []string `json:"contentAreas"`
	Strategy     string   `json:"strategy"`
	Available    bool     `json:"available"`
	Error        string   `json:"error,omitempty"`
}

type PersonaCard struct {
	Name         string            `json:"name"`
	Subtitle     string            `json:"subtitle,omitempty"`
	Description  string            `json:"description"`
	Expertise    []string          `json:"expertise,omitempty"`
	Style        map[string]string `json:"style,omitempty"`
	Capabilities int32             `json:"capabilities"`
	Modules      map[string]int32  `json:"modules,omitempty"`
}

type Example struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type FileContext struct {
	Path    string `json:"path"`
	Type    string `json:"type"`
	Preview string `json:"preview"`
}

type TokenUsage struct {
	InputTokens  int32 `json:"inputTokens"`
	OutputTokens int32 `json:"outputTokens"`
	TotalTokens  int32 `json:"totalTokens"`
}

type ChatOptions struct {
	Scenario    string       `json:"scenario,omitempty"`
	ProjectInfo string       `json:"projectInfo,omitempty"`
	Note        string       `json:"note,omitempty"`
	CurrentFile *FileContext `json:"currentFile,omitempty"`
}

type ChatReply struct {
	PersonaId     string     `json:"roleId"`
	PersonaName   string     `json:"roleName"`
	PersonaIcon   string     `json:"roleIcon"`
	Scenario      string     `json:"scenario"`
	ScenarioLabel string     `json:"scenarioLabel"`
	UserMessage   string     `json:"userMessage"`
	Response      string     `json:"aiResponse"`
	Timestamp     time.Time  `json:"timestamp"`
	Usage         TokenUsage `json:"tokenUsage"`
	HasHistory    bool       `json:"hasHistory"`
}

type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Assistant string    `json:"ai"`
	Scenario  string    `json:"scenario"`
	Tokens    int32     `json:"tokens"`
}

type HistoryStats struct {
	PersonaId   string     `json:"roleId"`
	Count       int32      `json:"count"`
	TotalTokens int32      `json:"totalTokens"`
	LastChat    *time.Time `json:"lastChat,omitempty"`
}

type ListPersonasRequest struct{}

type ListPersonasResponse struct {
	Personas []*Persona `json:"personas"`
}

type GetPersonaRequest struct {
	PersonaId string `json:"personaId"`
}

type GetPersonaResponse struct {
	Persona      *Persona     `json:"persona"`
	Card         *PersonaCard `json:"card,omitempty"`
	Examples     []*Example   `json:"examples,omitempty"`
	Sections     []string     `json:"sections,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
}

type ChatRequest struct {
	PersonaId string       `json:"personaId"`
	Message   string       `json:"message"`
	Options   *ChatOptions `json:"options,omitempty"`
}

type ChatResponse struct {
	Reply *ChatReply `json:"reply"`
}

type MultiChatRequest struct {
	PersonaIds []string     `json:"personaIds"`
	Message    string       `json:"message"`
	Options    *ChatOptions `json:"options,omitempty"`
}

type MultiChatResult struct {
	PersonaId string     `json:"roleId"`
	Success   bool       `json:"success"`
	Reply     *ChatReply `json:"reply,omitempty"`
	Error     string     `json:"error,omitempty"`
}

type MultiChatResponse struct {
	Results []*MultiChatResult `json:"results"`
}

type GetHistoryStatsRequest struct {
	// PersonaId selects one persona; empty returns every persona.
	PersonaId string `json:"personaId,omitempty"`
}

type GetHistoryStatsResponse struct {
	Stats []*HistoryStats `json:"stats"`
}

type ExportHistoryRequest struct {
	PersonaId string `json:"personaId"`
}

type ExportHistoryResponse struct {
	Persona       *Persona        `json:"persona"`
	Conversations []*HistoryEntry `json:"conversations"`
	ExportTime    time.Time       `json:"exportTime"`
	Statistics    *HistoryStats   `json:"statistics"`
}

type ClearHistoryRequest struct {
	// PersonaId selects one persona; empty clears every persona.
	PersonaId string `json:"personaId,omitempty"`
}

type ClearHistoryResponse struct{}

type SuggestPersonaRequest struct {
	FilePath string `json:"filePath"`
}

type SuggestPersonaResponse struct {
	Persona *Persona `json:"persona"`
}
