package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/kazz187/novelguild/pkg/storage"
)

const (
	roleRoot   = "role"
	sharedDir  = "shared"
	legacyRoot = "roles"
)

var errRoleMissing = fmt.Errorf("role definition: %w", storage.ErrNotFound)

// Resolver locates role definitions and their modules in a prompt store.
type Resolver struct {
	src storage.Reader
}

func NewResolver(src storage.Reader) *Resolver {
	return &Resolver{src: src}
}

// RolePath is the definition file of a modular role directory.
func RolePath(roleDir string) string {
	return path.Join(roleRoot, roleDir, roleDir+".role.md")
}

// Candidates lists where a module may live, most specific first.
func Candidates(roleDir string, kind Kind, name string) []string {
	return []string{
		path.Join(roleRoot, roleDir, string(kind), name+"."+string(kind)+".md"),
		path.Join(roleRoot, roleDir, string(kind), name+".md"),
		path.Join(roleRoot, sharedDir, name+".md"),
	}
}

// Resolve returns the first candidate that exists. A missing optional
// module is logged and yields nil without error.
func (r *Resolver) Resolve(ctx context.Context, roleDir string, ref Reference) (*ResolvedModule, error) {
	for _, p := range Candidates(roleDir, ref.Kind, ref.Name) {
		data, err := r.src.Read(ctx, p)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, loadError(fmt.Sprintf("模块读取失败: %s", ref.Raw), err)
		}
		return &ResolvedModule{
			Name:     ref.Name,
			Kind:     ref.Kind,
			Content:  string(data),
			Location: p,
		}, nil
	}
	if ref.Required {
		return nil, loadError(fmt.Sprintf("必需模块未找到: %s", ref.Raw), storage.ErrNotFound)
	}
	slog.WarnContext(ctx, "prompt: optional module not found", "role_dir", roleDir, "module", ref.Raw)
	return nil, nil
}

// ResolveRole loads a role definition and the modules it references.
// Only thought references under personality, execution references under
// principle and knowledge references under knowledge are loaded.
func (r *Resolver) ResolveRole(ctx context.Context, roleDir string) (*ModularRole, error) {
	data, err := r.src.Read(ctx, RolePath(roleDir))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errRoleMissing
	}
	if err != nil {
		return nil, loadError(fmt.Sprintf("角色定义读取失败: %s", roleDir), err)
	}

	role := &ModularRole{Definition: ParseRoleDefinition(string(data))}
	groups := []struct {
		refs []Reference
		kind Kind
		dst  *[]ResolvedModule
	}{
		{role.Definition.Personality, KindThought, &role.Thought},
		{role.Definition.Principle, KindExecution, &role.Execution},
		{role.Definition.Knowledge, KindKnowledge, &role.Knowledge},
	}
	for _, g := range groups {
		for _, ref := range g.refs {
			if ref.Kind != g.kind {
				continue
			}
			m, err := r.Resolve(ctx, roleDir, ref)
			if err != nil {
				return nil, err
			}
			if m != nil {
				*g.dst = append(*g.dst, *m)
			}
		}
	}
	return role, nil
}
