// Package planner is the Request Validator & Planner: three phases over a
// model.Request's operations — schema validation (layering collaborator
// checks on top of model.Request.Validate), dependency/cycle validation,
// and topological sort into a dispatch-ready Plan.
//
// Grounded on the teacher's internal/world dependency-graph handling
// (graph_interface.go's arena+index framing, reused here as adjacency
// lists keyed by operation id) generalized from file dependency graphs to
// operation dependsOn graphs.
package planner

import (
	"fmt"
	"regexp"
	"sort"

	"fileops/internal/fsservice"
	"fileops/internal/model"
)

// Plan is the fully validated, topologically ordered batch the engine
// dispatches. IDs are resolved: every operation has a non-empty ID,
// auto-assigned "op-<index>" when the request left it blank.
type Plan struct {
	Operations map[string]model.Operation
	Order      []string            // one valid topological linearization
	Dependents map[string][]string // id -> ids that depend on it
	InDegree   map[string]int      // id -> number of unresolved dependencies
}

// Planner runs the three validation/planning phases.
type Planner struct {
	fs *fsservice.Service
}

// New creates a Planner. fs is used for phase 1's path-containment checks.
func New(fs *fsservice.Service) *Planner {
	return &Planner{fs: fs}
}

// Plan validates req and, on success, returns a topologically sorted Plan.
func (p *Planner) Plan(req model.Request) (*Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ops := assignIDs(req.Operations)

	if err := p.validateCollaboratorFields(ops); err != nil {
		return nil, err
	}

	inDegree, dependents, err := validateDependencies(ops)
	if err != nil {
		return nil, err
	}

	order, err := topologicalSort(ops, inDegree, dependents)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Operation, len(ops))
	for _, op := range ops {
		byID[op.ID] = op
	}

	return &Plan{Operations: byID, Order: order, Dependents: dependents, InDegree: inDegree}, nil
}

// assignIDs returns a copy of ops with every ID populated.
func assignIDs(ops []model.Operation) []model.Operation {
	out := make([]model.Operation, len(ops))
	for i, op := range ops {
		if op.ID == "" {
			op.ID = fmt.Sprintf("op-%d", i)
		}
		out[i] = op
	}
	return out
}

// validateCollaboratorFields layers the phase 1 checks that need a
// collaborator (regex compilation, path containment) on top of the
// structural checks model.Operation.Validate already performed.
func (p *Planner) validateCollaboratorFields(ops []model.Operation) error {
	for _, op := range ops {
		switch op.Type {
		case model.OpEdit:
			for _, edit := range op.Edits {
				if p.fs != nil {
					if _, err := p.fs.Resolve(edit.File); err != nil {
						return model.WrapError(model.KindPathEscape, err, "operation %s: file %q", op.ID, edit.File)
					}
				}
				for _, c := range edit.Changes {
					if c.Type == model.ChangeFindReplace && c.Regex {
						if _, err := regexp.Compile(c.Find); err != nil {
							return model.WrapError(model.KindRegexInvalid, err, "operation %s: find-replace pattern %q", op.ID, c.Find)
						}
					}
				}
			}
		case model.OpCreate:
			if p.fs == nil {
				continue
			}
			for _, f := range op.Files {
				if _, err := p.fs.Resolve(f.Path); err != nil {
					return model.WrapError(model.KindPathEscape, err, "operation %s: file %q", op.ID, f.Path)
				}
			}
		case model.OpAnalyze, model.OpDelete:
			if p.fs == nil {
				continue
			}
			for _, pat := range op.Paths {
				if _, err := p.fs.Resolve(pat); err != nil {
					return model.WrapError(model.KindPathEscape, err, "operation %s: path %q", op.ID, pat)
				}
			}
		case model.OpValidate:
			if p.fs == nil {
				continue
			}
			for _, pat := range op.ValidateFiles {
				if _, err := p.fs.Resolve(pat); err != nil {
					return model.WrapError(model.KindPathEscape, err, "operation %s: validateFiles %q", op.ID, pat)
				}
			}
		}
	}
	return nil
}

// validateDependencies checks every dependsOn reference exists and the
// dependency graph is acyclic (DFS with a recursion stack), returning the
// in-degree and forward-edge (dependents) maps the engine consumes.
func validateDependencies(ops []model.Operation) (map[string]int, map[string][]string, error) {
	ids := make(map[string]bool, len(ops))
	for _, op := range ops {
		ids[op.ID] = true
	}

	inDegree := make(map[string]int, len(ops))
	dependents := make(map[string][]string, len(ops))
	for _, op := range ops {
		inDegree[op.ID] = 0
	}

	for _, op := range ops {
		for _, dep := range op.DependsOn {
			if !ids[dep] {
				return nil, nil, model.NewError(model.KindDependencyMissing, "operation %s depends on unknown id %q", op.ID, dep)
			}
			dependents[dep] = append(dependents[dep], op.ID)
			inDegree[op.ID]++
		}
	}

	if cyclePath, ok := findCycle(ops, dependents); ok {
		return nil, nil, model.NewError(model.KindDependencyCycle, "dependency cycle detected: %v", cyclePath)
	}

	return inDegree, dependents, nil
}

type visitState int

const (
	white visitState = iota
	gray
	black
)

// findCycle runs DFS with an explicit recursion stack (gray set) over the
// dependents adjacency, per spec.md's "detect cycles via DFS" requirement.
func findCycle(ops []model.Operation, dependents map[string][]string) ([]string, bool) {
	state := make(map[string]visitState, len(ops))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = gray
		stack = append(stack, id)

		for _, next := range dependents[id] {
			switch state[next] {
			case white:
				if visit(next) {
					return true
				}
			case gray:
				start := 0
				for i, n := range stack {
					if n == next {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, stack[start:]...), next)
				return true
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = black
		return false
	}

	ordered := make([]string, 0, len(ops))
	for _, op := range ops {
		ordered = append(ordered, op.ID)
	}
	sort.Strings(ordered)

	for _, id := range ordered {
		if state[id] == white {
			if visit(id) {
				return cycle, true
			}
		}
	}
	return nil, false
}

// topologicalSort runs Kahn's algorithm over inDegree/dependents, breaking
// ties by operation declaration order so the result is deterministic.
func topologicalSort(ops []model.Operation, inDegree map[string]int, dependents map[string][]string) ([]string, error) {
	position := make(map[string]int, len(ops))
	for i, op := range ops {
		position[op.ID] = i
	}

	remaining := make(map[string]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}

	var ready []string
	for id, d := range remaining {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })

	order := make([]string, 0, len(ops))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newlyReady []string
		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				newlyReady = append(newlyReady, dep)
			}
		}
		sort.Slice(newlyReady, func(i, j int) bool { return position[newlyReady[i]] < position[newlyReady[j]] })
		ready = append(ready, newlyReady...)
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
	}

	if len(order) != len(ops) {
		return nil, model.NewError(model.KindDependencyCycle, "dependency cycle prevented a full topological sort")
	}
	return order, nil
}
