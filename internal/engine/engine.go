// Package engine is the Parallel Execution Engine: it dispatches a
// planner.Plan's topologically ordered operations with a bounded
// concurrency degree, enforcing the path-collision rule for concurrent
// mutating operations, wiring transaction commit/rollback, and propagating
// abort/timeout as cooperative cancellation.
//
// Grounded on the teacher's internal/world/fs.go ScanDirectory: its
// sync.WaitGroup + buffered-channel worker pool is kept as the dispatch
// shape, with the raw channel replaced by golang.org/x/sync/semaphore
// (already in the teacher's go.mod, used elsewhere in the corpus) since
// this engine additionally needs TryAcquire for the collision-aware
// dispatch loop below, not just a fixed worker count.
package engine

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"fileops/internal/analyzer"
	"fileops/internal/cache"
	"fileops/internal/editor"
	"fileops/internal/fsservice"
	"fileops/internal/logging"
	"fileops/internal/model"
	"fileops/internal/planner"
	"fileops/internal/transaction"
	"fileops/internal/validator"
)

// inflightOp records what a dispatched-but-not-yet-completed operation may
// touch, so a later dispatch can evaluate the path-collision rule against it.
type inflightOp struct {
	paths    []string
	readOnly bool
}

// Engine composes the collaborators one operation's execution needs.
type Engine struct {
	fs        *fsservice.Service
	cache     *cache.Cache
	editor    *editor.Editor
	analyzer  *analyzer.Analyzer
	validator *validator.Validator
	txns      *transaction.Manager
	log       *logging.Logger
}

// New creates an Engine. c and txns may be nil when the caller never wires
// a cache or runs transactional batches.
func New(fs *fsservice.Service, c *cache.Cache, ed *editor.Editor, an *analyzer.Analyzer, val *validator.Validator, txns *transaction.Manager) *Engine {
	return &Engine{fs: fs, cache: c, editor: ed, analyzer: an, validator: val, txns: txns, log: logging.Get(logging.CategoryEngine)}
}

// Execute dispatches plan's operations per spec.md §4.8's algorithm and
// returns the aggregate result. txn is the transaction already begun and
// snapshotted by the caller when opts.Transaction is set; nil otherwise.
func (e *Engine) Execute(ctx context.Context, plan *planner.Plan, opts model.ExecutionOptions, txn *transaction.Transaction, progress model.ProgressCallback) model.AggregateResult {
	opts = opts.Normalized()

	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var txnID string
	if txn != nil {
		txnID = txn.ID
	}

	position := make(map[string]int, len(plan.Order))
	for i, id := range plan.Order {
		position[id] = i
	}

	remaining := make(map[string]int, len(plan.InDegree))
	for id, d := range plan.InDegree {
		remaining[id] = d
	}

	pending := make(map[string]bool, len(plan.Operations))
	for id := range plan.Operations {
		pending[id] = true
	}

	var ready []string
	for id, d := range remaining {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortByPosition(ready, position)

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrency))
	completions := make(chan model.OperationResult)
	inFlight := make(map[string]inflightOp)
	results := make(map[string]model.OperationResult, len(plan.Operations))

	running := 0
	batchFailed := false
	cancelling := false

	collides := func(id string, mine []string, readOnly bool) bool {
		for other, info := range inFlight {
			if other == id {
				continue
			}
			if readOnly && info.readOnly {
				continue // both read-only: spec.md §4.8 allows this pair regardless of overlap
			}
			if intersects(mine, info.paths) {
				return true
			}
		}
		return false
	}

	dispatch := func(id string) bool {
		op := plan.Operations[id]
		readOnly := op.IsReadOnly()
		paths, _ := e.affectedPaths(op)
		if collides(id, paths, readOnly) {
			return false
		}
		if !sem.TryAcquire(1) {
			return false
		}

		inFlight[id] = inflightOp{paths: paths, readOnly: readOnly}
		delete(pending, id)
		running++
		progress.Emit(model.ProgressEvent{OperationID: id, Status: model.StatusRunning})
		logging.AuditWithRequest("").Log(logging.AuditEvent{
			EventType:   logging.AuditOperationStart,
			OperationID: id,
			TxnID:       txnID,
			Success:     true,
		})

		go func() {
			defer sem.Release(1)
			start := time.Now()
			data, err := e.executeOne(ctx, op)
			dur := time.Since(start).Milliseconds()

			res := model.OperationResult{ID: id, Type: op.Type, DurationMs: dur}
			switch {
			case err != nil && ctx.Err() != nil:
				res.Status = model.StatusCancelled
				res.Error = model.WrapError(model.KindCancelled, err, "operation %s cancelled", id)
			case err != nil:
				res.Status = model.StatusFailed
				res.Error = model.AsError(err)
			default:
				res.Status = model.StatusCompleted
				res.Data = data
			}

			auditType := logging.AuditOperationComplete
			if res.Status != model.StatusCompleted {
				auditType = logging.AuditOperationError
			}
			errMsg := ""
			if res.Error != nil {
				errMsg = res.Error.Error()
			}
			logging.AuditWithRequest("").Log(logging.AuditEvent{
				EventType:   auditType,
				OperationID: id,
				TxnID:       txnID,
				Success:     res.Status == model.StatusCompleted,
				DurationMs:  dur,
				Error:       errMsg,
			})

			completions <- res
		}()
		return true
	}

	handleCompletion := func(res model.OperationResult) {
		running--
		delete(inFlight, res.ID)
		delete(pending, res.ID)
		results[res.ID] = res
		progress.Emit(model.ProgressEvent{OperationID: res.ID, Status: res.Status})

		if res.Status != model.StatusCompleted {
			if res.Status == model.StatusFailed {
				batchFailed = true
				if opts.Transaction || !opts.ContinueOnError {
					cancelling = true
					ready = nil
				}
			}
			return // dependents of a non-completed op are never promoted
		}

		if e.txns != nil && txn != nil {
			e.txns.RecordResult(txn.ID, res)
		}

		for _, dep := range plan.Dependents[res.ID] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sortByPosition(ready, position)
	}

runLoop:
	for {
		if !cancelling && ctx.Err() != nil {
			cancelling = true
			ready = nil
		}

		if !cancelling {
			var stillReady []string
			for _, id := range ready {
				if running >= opts.MaxConcurrency || !dispatch(id) {
					stillReady = append(stillReady, id)
					continue
				}
			}
			ready = stillReady
		}

		if running == 0 {
			break runLoop
		}

		if cancelling {
			handleCompletion(<-completions)
			continue runLoop
		}

		select {
		case <-ctx.Done():
			cancelling = true
			ready = nil
		case res := <-completions:
			handleCompletion(res)
		}
	}

	for id := range pending {
		op := plan.Operations[id]
		results[id] = model.OperationResult{ID: id, Type: op.Type, Status: model.StatusCancelled}
		progress.Emit(model.ProgressEvent{OperationID: id, Status: model.StatusCancelled, Message: "never dispatched"})
	}

	agg := model.AggregateResult{}
	for _, id := range plan.Order {
		agg.Results = append(agg.Results, results[id])
	}
	agg.Summary = summarize(agg.Results)

	timedOut := ctx.Err() == context.DeadlineExceeded
	aborted := ctx.Err() == context.Canceled

	if txn != nil && e.txns != nil {
		if batchFailed || timedOut || aborted {
			if _, err := e.txns.Rollback(txn.ID); err != nil {
				agg.Error = model.AsError(err)
			}
		} else {
			if err := e.txns.Commit(txn.ID); err != nil {
				agg.Error = model.AsError(err)
				batchFailed = true
			}
		}
	}

	agg.Success = !batchFailed && !timedOut && !aborted
	if agg.Error == nil {
		switch {
		case timedOut:
			agg.Error = model.NewError(model.KindTimeout, "execution exceeded timeoutMs")
		case aborted:
			agg.Error = model.NewError(model.KindCancelled, "execution aborted")
		}
	}
	return agg
}

func summarize(results []model.OperationResult) model.Summary {
	s := model.Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case model.StatusCompleted:
			s.Successful++
		case model.StatusFailed:
			s.Failed++
		case model.StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

func sortByPosition(ids []string, position map[string]int) {
	sort.Slice(ids, func(i, j int) bool { return position[ids[i]] < position[ids[j]] })
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if set[p] {
			return true
		}
	}
	return false
}

// affectedPaths returns the set of paths op may read or write (the
// glossary's "affected-path set"). Every operation type reports its real
// paths, including read-only ones: spec.md §4.8's collision rule only
// exempts a pair where BOTH operations are read-only, so a read-only op
// still needs its paths to detect collisions against an in-flight mutator.
func (e *Engine) affectedPaths(op model.Operation) ([]string, error) {
	// A literal path that does not exist yet expands to no match, so the
	// patterns themselves are kept as well: analyzing "x.go" then still
	// collides with an in-flight create of "x.go".
	expand := func(patterns []string) ([]string, error) {
		paths, err := e.fs.ExpandGlobs(patterns)
		if err != nil {
			return nil, err
		}
		return append(paths, patterns...), nil
	}
	switch op.Type {
	case model.OpAnalyze:
		return expand(op.Paths)
	case model.OpEdit:
		out := make([]string, 0, len(op.Edits))
		for _, fe := range op.Edits {
			out = append(out, fe.File)
		}
		return out, nil
	case model.OpCreate:
		out := make([]string, 0, len(op.Files))
		for _, f := range op.Files {
			out = append(out, f.Path)
		}
		return out, nil
	case model.OpDelete:
		return expand(op.Paths)
	case model.OpValidate:
		return expand(op.ValidateFiles)
	default:
		return nil, nil
	}
}
