package repositoryimpl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kazz187/novelguild/internal/workflow"
	"github.com/kazz187/novelguild/pkg/cerr"
	"github.com/kazz187/novelguild/pkg/storage"
)

const workflowsPrefix = "workflows"

// JSONRepository stores one JSON document per workflow at
// workflows/<id>.json. Every write replaces the whole document.
type JSONRepository struct {
	storage storage.Storage
}

func NewJSONRepository(s storage.Storage) *JSONRepository {
	return &JSONRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.json", workflowsPrefix, id)
}

func (r *JSONRepository) write(ctx context.Context, w *workflow.Workflow) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal workflow: %w", err))
	}
	if err := r.storage.Write(ctx, path(w.ID), data); err != nil {
		return cerr.WrapStorageWriteError("workflow", err)
	}
	return nil
}

func (r *JSONRepository) Create(ctx context.Context, w *workflow.Workflow) error {
	exists, err := r.storage.Exists(ctx, path(w.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("workflow", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "workflow already exists", nil)
	}
	return r.write(ctx, w)
}

func (r *JSONRepository) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("工作流不存在: %s", id), nil)
	}
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("工作流不存在: %s", id), err)
		}
		return nil, cerr.WrapStorageReadError("workflow", err)
	}
	var w workflow.Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal workflow: %w", err))
	}
	return &w, nil
}

func (r *JSONRepository) Update(ctx context.Context, w *workflow.Workflow) error {
	exists, err := r.storage.Exists(ctx, path(w.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("workflow", err)
	}
	if !exists {
		return cerr.NewError(cerr.NotFound, fmt.Sprintf("工作流不存在: %s", w.ID), nil)
	}
	return r.write(ctx, w)
}

func (r *JSONRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("workflow", err)
	}
	return nil
}

// ListByUser reads the documents whose key starts with "<userID>_" and
// keeps those owned by userID. Unreadable documents are skipped.
func (r *JSONRepository) ListByUser(ctx context.Context, userID string) ([]*workflow.Workflow, error) {
	paths, err := r.storage.List(ctx, workflowsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("workflows", err)
	}

	prefix := workflowsPrefix + "/" + userID + "_"
	var out []*workflow.Workflow
	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) || !strings.HasSuffix(p, ".json") {
			continue
		}
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.WarnContext(ctx, "workflow: failed to read", "path", p, "error", err)
			continue
		}
		var w workflow.Workflow
		if err := json.Unmarshal(data, &w); err != nil {
			slog.WarnContext(ctx, "workflow: failed to decode", "path", p, "error", err)
			continue
		}
		if w.UserID != userID {
			continue
		}
		out = append(out, &w)
	}
	return out, nil
}
