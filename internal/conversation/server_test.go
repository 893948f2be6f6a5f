package conversation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	novelguildv1 "github.com/kazz187/novelguild/api/novelguild/v1"
	"github.com/kazz187/novelguild/api/novelguild/v1/novelguildv1connect"
	"github.com/kazz187/novelguild/pkg/cerr"
)

func newPersonaClient(t *testing.T, f *fixture) novelguildv1connect.PersonaServiceClient {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(novelguildv1connect.NewPersonaServiceHandler(
		NewServer(f.svc),
		connect.WithInterceptors(cerr.NewConvertConnectErrorInterceptor()),
	))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return novelguildv1connect.NewPersonaServiceClient(srv.Client(), srv.URL)
}

func TestServerChat(t *testing.T) {
	f := newFixture(t, "先从主角的欲望写起")
	client := newPersonaClient(t, f)
	ctx := context.Background()

	res, err := client.Chat(ctx, connect.NewRequest(&novelguildv1.ChatRequest{
		PersonaId: "writer",
		Message:   "第一章怎么写？",
		Options: &novelguildv1.ChatOptions{
			Scenario:    "creation",
			CurrentFile: &novelguildv1.FileContext{Path: "3-小说内容/第一章.md", Type: "markdown"},
		},
	}))
	require.NoError(t, err)
	reply := res.Msg.Reply
	assert.Equal(t, "writer", reply.PersonaId)
	assert.Equal(t, "先从主角的欲望写起", reply.Response)
	assert.Equal(t, "第一章怎么写？", reply.UserMessage)
	assert.Positive(t, reply.Usage.TotalTokens)
	assert.False(t, reply.HasHistory)

	stats, err := client.GetHistoryStats(ctx, connect.NewRequest(&novelguildv1.GetHistoryStatsRequest{PersonaId: "writer"}))
	require.NoError(t, err)
	require.Len(t, stats.Msg.Stats, 1)
	assert.Equal(t, int32(1), stats.Msg.Stats[0].Count)

	all, err := client.GetHistoryStats(ctx, connect.NewRequest(&novelguildv1.GetHistoryStatsRequest{}))
	require.NoError(t, err)
	require.Len(t, all.Msg.Stats, 5)
	assert.Equal(t, "architect", all.Msg.Stats[0].PersonaId)

	exp, err := client.ExportHistory(ctx, connect.NewRequest(&novelguildv1.ExportHistoryRequest{PersonaId: "writer"}))
	require.NoError(t, err)
	require.Len(t, exp.Msg.Conversations, 1)
	assert.Equal(t, "第一章怎么写？", exp.Msg.Conversations[0].User)
	assert.True(t, fixedNow.Equal(exp.Msg.ExportTime))
	assert.Equal(t, "文学写手", exp.Msg.Persona.Name)

	_, err = client.ClearHistory(ctx, connect.NewRequest(&novelguildv1.ClearHistoryRequest{}))
	require.NoError(t, err)
	stats, err = client.GetHistoryStats(ctx, connect.NewRequest(&novelguildv1.GetHistoryStatsRequest{PersonaId: "writer"}))
	require.NoError(t, err)
	assert.Zero(t, stats.Msg.Stats[0].Count)
}

func TestServerChatErrors(t *testing.T) {
	f := newFixture(t)
	client := newPersonaClient(t, f)
	ctx := context.Background()

	_, err := client.Chat(ctx, connect.NewRequest(&novelguildv1.ChatRequest{PersonaId: "ghost", Message: "hi"}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = client.Chat(ctx, connect.NewRequest(&novelguildv1.ChatRequest{PersonaId: "writer", Message: "  "}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = client.GetPersona(ctx, connect.NewRequest(&novelguildv1.GetPersonaRequest{PersonaId: "planner"}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	assert.Zero(t, f.fake.CallCount())
}

func TestServerPersonas(t *testing.T) {
	f := newFixture(t)
	client := newPersonaClient(t, f)
	ctx := context.Background()

	list, err := client.ListPersonas(ctx, connect.NewRequest(&novelguildv1.ListPersonasRequest{}))
	require.NoError(t, err)
	require.Len(t, list.Msg.Personas, 5)
	byID := map[string]*novelguildv1.Persona{}
	for _, p := range list.Msg.Personas {
		byID[p.Id] = p
	}
	assert.True(t, byID["architect"].Available)
	assert.False(t, byID["planner"].Available)
	assert.NotEmpty(t, byID["planner"].Error)

	got, err := client.GetPersona(ctx, connect.NewRequest(&novelguildv1.GetPersonaRequest{PersonaId: "architect"}))
	require.NoError(t, err)
	assert.Equal(t, "legacy", got.Msg.Persona.Strategy)
	require.NotNil(t, got.Msg.Card)
	assert.Equal(t, "你是architect。", got.Msg.Card.Description)
	require.Len(t, got.Msg.Examples, 1)
	assert.Equal(t, "怎么开头？", got.Msg.Examples[0].Question)

	sug, err := client.SuggestPersona(ctx, connect.NewRequest(&novelguildv1.SuggestPersonaRequest{FilePath: "0-小说设定/地理.md"}))
	require.NoError(t, err)
	assert.Equal(t, "architect", sug.Msg.Persona.Id)
	assert.True(t, sug.Msg.Persona.Available)
}

func TestServerMultiChat(t *testing.T) {
	f := newFixture(t, "各抒己见")
	client := newPersonaClient(t, f)

	res, err := client.MultiChat(context.Background(), connect.NewRequest(&novelguildv1.MultiChatRequest{
		PersonaIds: []string{"director", "ghost"},
		Message:    "这个设定可行吗？",
	}))
	require.NoError(t, err)
	require.Len(t, res.Msg.Results, 2)
	assert.True(t, res.Msg.Results[0].Success)
	assert.Equal(t, "各抒己见", res.Msg.Results[0].Reply.Response)
	assert.False(t, res.Msg.Results[1].Success)
	assert.Nil(t, res.Msg.Results[1].Reply)
	assert.Equal(t, "未知的角色ID: ghost", res.Msg.Results[1].Error)
}
