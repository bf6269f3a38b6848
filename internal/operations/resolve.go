package operations

import (
	"fmt"
	"slices"

	"github.com/compozy/stackops/internal/domain"
)

// ResolveMode selects how a conflicted file is resolved.
type ResolveMode string

const (
	ResolveMark      ResolveMode = "mark"
	ResolveUnmark    ResolveMode = "unmark"
	ResolveTakeLocal ResolveMode = "local"
	ResolveTakeOther ResolveMode = "other"
	ResolveMergeTool ResolveMode = "merge"
)

var resolveTools = map[ResolveMode]string{
	ResolveTakeLocal: "internal:merge-local",
	ResolveTakeOther: "internal:merge-other",
	ResolveMergeTool: "internal:merge",
}

// ResolveOperation marks, unmarks or auto-resolves a conflicted file.
type ResolveOperation struct {
	domain.Base
	path string
	mode ResolveMode
}

func NewResolve(path string, mode ResolveMode, opts ...Option) (*ResolveOperation, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if _, ok := resolveTools[mode]; !ok && mode != ResolveMark && mode != ResolveUnmark {
		return nil, fmt.Errorf("%w: unknown resolve mode %q", ErrInvalidParameter, mode)
	}
	o := buildOptions(opts)
	return &ResolveOperation{
		Base: newBase("resolve", domain.TrackResolve, o),
		path: path,
		mode: mode,
	}, nil
}

func (op *ResolveOperation) Args() []domain.CommandArg {
	args := domain.Lits("resolve")
	switch op.mode {
	case ResolveMark:
		args = append(args, domain.Lit("--mark"))
	case ResolveUnmark:
		args = append(args, domain.Lit("--unmark"))
	default:
		args = append(args, domain.Lits("--tool", resolveTools[op.mode])...)
	}
	return append(args, domain.RepoRelativeFile(op.path))
}

func (op *ResolveOperation) target() domain.FileStatus {
	if op.mode == ResolveUnmark {
		return domain.FileUnresolved
	}
	return domain.FileResolved
}

func (op *ResolveOperation) MakeOptimisticMergeConflictsApplier(
	ctx domain.MergeConflictsPreviewContext,
) domain.ApplyMergeConflictsFunc {
	if ctx.Conflicts == nil {
		return nil
	}
	want := op.target()
	idx := slices.IndexFunc(ctx.Conflicts.Files, func(f domain.ChangedFile) bool { return f.Path == op.path })
	if idx < 0 || ctx.Conflicts.Files[idx].Status == want {
		return nil
	}
	path := op.path
	return func(conflicts *domain.MergeConflicts) *domain.MergeConflicts {
		out := conflicts.Clone()
		if out == nil {
			return nil
		}
		for i := range out.Files {
			if out.Files[i].Path == path {
				out.Files[i].Status = want
			}
		}
		return out
	}
}
