package novelguildv1connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/novelguild/api/novelguild/v1"
)

const WorkflowServiceName = "novelguild.v1.WorkflowService"

const (
	WorkflowServiceStartWorkflowProcedure = "/novelguild.v1.WorkflowService/StartWorkflow"
	WorkflowServiceExecutePhaseProcedure  = "/novelguild.v1.WorkflowService/ExecutePhase"
	WorkflowServiceChoosePhaseProcedure   = "/novelguild.v1.WorkflowService/ChoosePhase"
	WorkflowServiceGetWorkflowProcedure   = "/novelguild.v1.WorkflowService/GetWorkflow"
	WorkflowServiceListWorkflowsProcedure = "/novelguild.v1.WorkflowService/ListWorkflows"
)

type WorkflowServiceClient interface {
	StartWorkflow(context.Context, *connect.Request[v1.StartWorkflowRequest]) (*connect.Response[v1.StartWorkflowResponse], error)
	ExecutePhase(context.Context, *connect.Request[v1.ExecutePhaseRequest]) (*connect.Response[v1.ExecutePhaseResponse], error)
	ChoosePhase(context.Context, *connect.Request[v1.ChoosePhaseRequest]) (*connect.Response[v1.ChoosePhaseResponse], error)
	GetWorkflow(context.Context, *connect.Request[v1.GetWorkflowRequest]) (*connect.Response[v1.GetWorkflowResponse], error)
	ListWorkflows(context.Context, *connect.Request[v1.ListWorkflowsRequest]) (*connect.Response[v1.ListWorkflowsResponse], error)
}

func NewWorkflowServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) WorkflowServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &workflowServiceClient{
		startWorkflow: connect.NewClient[v1.StartWorkflowRequest, v1.StartWorkflowResponse](httpClient, baseURL+WorkflowServiceStartWorkflowProcedure, opts...),
		executePhase:  connect.NewClient[v1.ExecutePhaseRequest, v1.ExecutePhaseResponse](httpClient, baseURL+WorkflowServiceExecutePhaseProcedure, opts...),
		choosePhase:   connect.NewClient[v1.ChoosePhaseRequest, v1.ChoosePhaseResponse](httpClient, baseURL+WorkflowServiceChoosePhaseProcedure, opts...),
		getWorkflow:   connect.NewClient[v1.GetWorkflowRequest, v1.GetWorkflowResponse](httpClient, baseURL+WorkflowServiceGetWorkflowProcedure, opts...),
		listWorkflows: connect.NewClient[v1.ListWorkflowsRequest, v1.ListWorkflowsResponse](httpClient, baseURL+WorkflowServiceListWorkflowsProcedure, opts...),
	}
}

type workflowServiceClient struct {
	startWorkflow *connect.Client[v1.StartWorkflowRequest, v1.StartWorkflowResponse]
	executePhase  *connect.Client[v1.ExecutePhaseRequest, v1.ExecutePhaseResponse]
	choosePhase   *connect.Client[v1.ChoosePhaseRequest, v1.ChoosePhaseResponse]
	getWorkflow   *connect.Client[v1.GetWorkflowRequest, v1.GetWorkflowResponse]
	listWorkflows *connect.Client[v1.ListWorkflowsRequest, v1.ListWorkflowsResponse]
}

func (c *workflowServiceClient) StartWorkflow(ctx context.Context, req *connect.Request[v1.StartWorkflowRequest]) (*connect.Response[v1.StartWorkflowResponse], error) {
	return c.startWorkflow.CallUnary(ctx, req)
}

func (c *workflowServiceClient) ExecutePhase(ctx context.Context, req *connect.Request[v1.ExecutePhaseRequest]) (*connect.Response[v1.ExecutePhaseResponse], error) {
	return c.executePhase.CallUnary(ctx, req)
}

func (c *workflowServiceClient) ChoosePhase(ctx context.Context, req *connect.Request[v1.ChoosePhaseRequest]) (*connect.Response[v1.ChoosePhaseResponse], error) {
	return c.choosePhase.CallUnary(ctx, req)
}

func (c *workflowServiceClient) GetWorkflow(ctx context.Context, req *connect.Request[v1.GetWorkflowRequest]) (*connect.Response[v1.GetWorkflowResponse], error) {
	return c.getWorkflow.CallUnary(ctx, req)
}

func (c *workflowServiceClient) ListWorkflows(ctx context.Context, req *connect.Request[v1.ListWorkflowsRequest]) (*connect.Response[v1.ListWorkflowsResponse], error) {
	return c.listWorkflows.CallUnary(ctx, req)
}

type WorkflowServiceHandler interface {
	StartWorkflow(context.Context, *connect.Request[v1.StartWorkflowRequest]) (*connect.Response[v1.StartWorkflowResponse], error)
	ExecutePhase(context.Context, *connect.Request[v1.ExecutePhaseRequest]) (*connect.Response[v1.ExecutePhaseResponse], error)
	ChoosePhase(context.Context, *connect.Request[v1.ChoosePhaseRequest]) (*connect.Response[v1.ChoosePhaseResponse], error)
	GetWorkflow(context.Context, *connect.Request[v1.GetWorkflowRequest]) (*connect.Response[v1.GetWorkflowResponse], error)
	ListWorkflows(context.Context, *connect.Request[v1.ListWorkflowsRequest]) (*connect.Response[v1.ListWorkflowsResponse], error)
}

func NewWorkflowServiceHandler(svc WorkflowServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)
	startWorkflow := connect.NewUnaryHandler(WorkflowServiceStartWorkflowProcedure, svc.StartWorkflow, opts...)
	executePhase := connect.NewUnaryHandler(WorkflowServiceExecutePhaseProcedure, svc.ExecutePhase, opts...)
	choosePhase := connect.NewUnaryHandler(WorkflowServiceChoosePhaseProcedure, svc.ChoosePhase, opts...)
	getWorkflow := connect.NewUnaryHandler(WorkflowServiceGetWorkflowProcedure, svc.GetWorkflow, opts...)
	listWorkflows := connect.NewUnaryHandler(WorkflowServiceListWorkflowsProcedure, svc.ListWorkflows, opts...)
	return "/" + WorkflowServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case WorkflowServiceStartWorkflowProcedure:
			startWorkflow.ServeHTTP(w, r)
		case WorkflowServiceExecutePhaseProcedure:
			executePhase.ServeHTTP(w, r)
		case WorkflowServiceChoosePhaseProcedure:
			choosePhase.ServeHTTP(w, r)
		case WorkflowServiceGetWorkflowProcedure:
			getWorkflow.ServeHTTP(w, r)
		case WorkflowServiceListWorkflowsProcedure:
			listWorkflows.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
