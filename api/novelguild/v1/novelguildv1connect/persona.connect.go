package novelguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/novelguild/api/novelguild/v1"
)

const PersonaServiceName = "novelguild.v1.PersonaService"

const (
	PersonaServiceListPersonasProcedure    = "/novelguild.v1.PersonaService/ListPersonas"
	PersonaServiceGetPersonaProcedure      = "/novelguild.v1.PersonaService/GetPersona"
	PersonaServiceChatProcedure            = "/novelguild.v1.PersonaService/Chat"
	PersonaServiceMultiChatProcedure       = "/novelguild.v1.PersonaService/MultiChat"
	PersonaServiceGetHistoryStatsProcedure = "/novelguild.v1.PersonaService/GetHistoryStats"
	PersonaServiceExportHistoryProcedure   = "/novelguild.v1.PersonaService/ExportHistory"
	PersonaServiceClearHistoryProcedure    = "/novelguild.v1.PersonaService/ClearHistory"
	PersonaServiceSuggestPersonaProcedure  = "/novelguild.v1.PersonaService/SuggestPersona"
)

type PersonaServiceClient interface {
	ListPersonas(context.Context, *connect.Request[v1.ListPersonasRequest]) (*connect.Response[v1.ListPersonasResponse], error)
	GetPersona(context.Context, *connect.Request[v1.GetPersonaRequest]) (*connect.Response[v1.GetPersonaResponse], error)
	Chat(context.Context, *connect.Request[v1.ChatRequest]) (*connect.Response[v1.ChatResponse], error)
	MultiChat(context.Context, *connect.Request[v1.MultiChatRequest]) (*connect.Response[v1.MultiChatResponse], error)
	GetHistoryStats(context.Context, *connect.Request[v1.GetHistoryStatsRequest]) (*connect.Response[v1.GetHistoryStatsResponse], error)
	ExportHistory(context.Context, *connect.Request[v1.ExportHistoryRequest]) (*connect.Response[v1.ExportHistoryResponse], error)
	ClearHistory(context.Context, *connect.Request[v1.ClearHistoryRequest]) (*connect.Response[v1.ClearHistoryResponse], error)
	SuggestPersona(context.Context, *connect.Request[v1.SuggestPersonaRequest]) (*connect.Response[v1.SuggestPersonaResponse], error)
}

func NewPersonaServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) PersonaServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &personaServiceClient{
		listPersonas:    connect.NewClient[v1.ListPersonasRequest, v1.ListPersonasResponse](httpClient, baseURL+PersonaServiceListPersonasProcedure, opts...),
		getPersona:      connect.NewClient[v1.GetPersonaRequest, v1.GetPersonaResponse](httpClient, baseURL+PersonaServiceGetPersonaProcedure, opts...),
		chat:            connect.NewClient[v1.ChatRequest, v1.ChatResponse](httpClient, baseURL+PersonaServiceChatProcedure, opts...),
		multiChat:       connect.NewClient[v1.MultiChatRequest, v1.MultiChatResponse](httpClient, baseURL+PersonaServiceMultiChatProcedure, opts...),
		getHistoryStats: connect.NewClient[v1.GetHistoryStatsRequest, v1.GetHistoryStatsResponse](httpClient, baseURL+PersonaServiceGetHistoryStatsProcedure, opts...),
		exportHistory:   connect.NewClient[v1.ExportHistoryRequest, v1.ExportHistoryResponse](httpClient, baseURL+PersonaServiceExportHistoryProcedure, opts...),
		clearHistory:    connect.NewClient[v1.ClearHistoryRequest, v1.ClearHistoryResponse](httpClient, baseURL+PersonaServiceClearHistoryProcedure, opts...),
		suggestPersona:  connect.NewClient[v1.SuggestPersonaRequest, v1.SuggestPersonaResponse](httpClient, baseURL+PersonaServiceSuggestPersonaProcedure, opts...),
	}
}

type personaServiceClient struct {
	listPersonas    *connect.Client[v1.ListPersonasRequest, v1.ListPersonasResponse]
	getPersona      *connect.Client[v1.GetPersonaRequest, v1.GetPersonaResponse]
	chat            *connect.Client[v1.ChatRequest, v1.ChatResponse]
	multiChat       *connect.Client[v1.MultiChatRequest, v1.MultiChatResponse]
	getHistoryStats *connect.Client[v1.GetHistoryStatsRequest, v1.GetHistoryStatsResponse]
	exportHistory   *connect.Client[v1.ExportHistoryRequest, v1.ExportHistoryResponse]
	clearHistory    *connect.Client[v1.ClearHistoryRequest, v1.ClearHistoryResponse]
	suggestPersona  *connect.Client[v1.SuggestPersonaRequest, v1.SuggestPersonaResponse]
}

func (c *personaServiceClient) ListPersonas(ctx context.Context, req *connect.Request[v1.ListPersonasRequest]) (*connect.Response[v1.ListPersonasResponse], error) {
	return c.listPersonas.CallUnary(ctx, req)
}

func (c *personaServiceClient) GetPersona(ctx context.Context, req *connect.Request[v1.GetPersonaRequest]) (*connect.Response[v1.GetPersonaResponse], error) {
	return c.getPersona.CallUnary(ctx, req)
}

func (c *personaServiceClient) Chat(ctx context.Context, req *connect.Request[v1.ChatRequest]) (*connect.Response[v1.ChatResponse], error) {
	return c.chat.CallUnary(ctx, req)
}

func (c *personaServiceClient) MultiChat(ctx context.Context, req *connect.Request[v1.MultiChatRequest]) (*connect.Response[v1.MultiChatResponse], error) {
	return c.multiChat.CallUnary(ctx, req)
}

func (c *personaServiceClient) GetHistoryStats(ctx context.Context, req *connect.Request[v1.GetHistoryStatsRequest]) (*connect.Response[v1.GetHistoryStatsResponse], error) {
	return c.getHistoryStats.CallUnary(ctx, req)
}

func (c *personaServiceClient) ExportHistory(ctx context.Context, req *connect.Request[v1.ExportHistoryRequest]) (*connect.Response[v1.ExportHistoryResponse], error) {
	return c.exportHistory.CallUnary(ctx, req)
}

func (c *personaServiceClient) ClearHistory(ctx context.Context, req *connect.Request[v1.ClearHistoryRequest]) (*connect.Response[v1.ClearHistoryResponse], error) {
	return c.clearHistory.CallUnary(ctx, req)
}

func (c *personaServiceClient) SuggestPersona(ctx context.Context, req *connect.Request[v1.SuggestPersonaRequest]) (*connect.Response[v1.SuggestPersonaResponse], error) {
	return c.suggestPersona.CallUnary(ctx, req)
}

type PersonaServiceHandler interface {
	ListPersonas(context.Context, *connect.Request[v1.ListPersonasRequest]) (*connect.Response[v1.ListPersonasResponse], error)
	GetPersona(context.Context, *connect.Request[v1.GetPersonaRequest]) (*connect.Response[v1.GetPersonaResponse], error)
	Chat(context.Context, *connect.Request[v1.ChatRequest]) (*connect.Response[v1.ChatResponse], error)
	MultiChat(context.Context, *connect.Request[v1.MultiChatRequest]) (*connect.Response[v1.MultiChatResponse], error)
	GetHistoryStats(context.Context, *connect.Request[v1.GetHistoryStatsRequest]) (*connect.Response[v1.GetHistoryStatsResponse], error)
	ExportHistory(context.Context, *connect.Request[v1.ExportHistoryRequest]) (*connect.Response[v1.ExportHistoryResponse], error)
	ClearHistory(context.Context, *connect.Request[v1.ClearHistoryRequest]) (*connect.Response[v1.ClearHistoryResponse], error)
	SuggestPersona(context.Context, *connect.Request[v1.SuggestPersonaRequest]) (*connect.Response[v1.SuggestPersonaResponse], error)
}

func NewPersonaServiceHandler(svc PersonaServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	listPersonas := connect.NewUnaryHandler(PersonaServiceListPersonasProcedure, svc.ListPersonas, opts...)
	getPersona := connect.NewUnaryHandler(PersonaServiceGetPersonaProcedure, svc.GetPersona, opts...)
	chat := connect.NewUnaryHandler(PersonaServiceChatProcedure, svc.Chat, opts...)
	multiChat := connect.NewUnaryHandler(PersonaServiceMultiChatProcedure, svc.MultiChat, opts...)
	getHistoryStats := connect.NewUnaryHandler(PersonaServiceGetHistoryStatsProcedure, svc.GetHistoryStats, opts...)
	exportHistory := connect.NewUnaryHandler(PersonaServiceExportHistoryProcedure, svc.ExportHistory, opts...)
	clearHistory := connect.NewUnaryHandler(PersonaServiceClearHistoryProcedure, svc.ClearHistory, opts...)
	suggestPersona := connect.NewUnaryHandler(PersonaServiceSuggestPersonaProcedure, svc.SuggestPersona, opts...)
	return "/" + PersonaServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PersonaServiceListPersonasProcedure:
			listPersonas.ServeHTTP(w, r)
		case PersonaServiceGetPersonaProcedure:
			getPersona.ServeHTTP(w, r)
		case PersonaServiceChatProcedure:
			chat.ServeHTTP(w, r)
		case PersonaServiceMultiChatProcedure:
			multiChat.ServeHTTP(w, r)
		case PersonaServiceGetHistoryStatsProcedure:
			getHistoryStats.ServeHTTP(w, r)
		case PersonaServiceExportHistoryProcedure:
			exportHistory.ServeHTTP(w, r)
		case PersonaServiceClearHistoryProcedure:
			clearHistory.ServeHTTP(w, r)
		case PersonaServiceSuggestPersonaProcedure:
			suggestPersona.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
