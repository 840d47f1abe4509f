// Package facade presents the single entry point described in spec.md
// §4.9: execute(request, abort, progressCb) -> AggregateResult. It wires
// the pathguard, file system service, cache, AST parser, editor, analyzer,
// validator, transaction manager, planner, and engine together from one
// config.Config.
//
// Grounded on the teacher's internal/tools/registry.go Execute/ExecuteTool
// top-level dispatch shape: a single entry point that resolves inputs,
// delegates to the right subsystem, and returns one structured result
// rather than letting callers reach into the collaborators directly.
package facade

import (
	"context"

	"fileops/internal/analyzer"
	"fileops/internal/astparser"
	"fileops/internal/cache"
	"fileops/internal/config"
	"fileops/internal/editor"
	"fileops/internal/engine"
	"fileops/internal/fsservice"
	"fileops/internal/logging"
	"fileops/internal/model"
	"fileops/internal/pathguard"
	"fileops/internal/planner"
	"fileops/internal/transaction"
	"fileops/internal/validator"
)

// Facade owns every long-lived collaborator for one configured root
// directory and exposes the single Execute operation.
type Facade struct {
	cfg      *config.Config
	fs       *fsservice.Service
	cache    *cache.Cache
	parser   *astparser.Parser
	planner  *planner.Planner
	engine   *engine.Engine
	txns     *transaction.Manager
	registry *validator.Registry
	log      *logging.Logger
}

// New wires every collaborator from cfg. Callers must call Close when
// done to release the AST parser and stop the transaction sweep goroutine.
func New(cfg *config.Config) (*Facade, error) {
	guard, err := pathguard.New(cfg.Root)
	if err != nil {
		return nil, err
	}

	fs := fsservice.New(guard, cfg.Ignore)
	c := cache.New(cache.Config{
		MaxSizeBytes:   cfg.Cache.MaxSizeBytes,
		MaxEntries:     cfg.Cache.MaxEntries,
		TTLMs:          cfg.Cache.TTLMs,
		EnableWatching: cfg.Cache.EnableWatching,
	}, fs)
	parser := astparser.New()

	ed := editor.New(fs, c, parser)
	an := analyzer.New(fs, c, parser)
	registry := validator.DefaultRegistry()
	val := validator.New(fs, c, parser, registry, cfg.Root)

	txns := transaction.NewManager(fs, transaction.Config{
		MaxSnapshots:    cfg.Transaction.MaxSnapshots,
		SweepIntervalMs: cfg.Transaction.SweepIntervalMs,
		MaxAgeMs:        cfg.Transaction.MaxAgeMs,
		Dir:             cfg.TransactionDir(),
	})
	txns.StartSweep()

	if err := logging.InitAudit(); err != nil {
		logging.Get(logging.CategoryFacade).Warn("audit log unavailable: %v", err)
	}

	return &Facade{
		cfg:      cfg,
		fs:       fs,
		cache:    c,
		parser:   parser,
		planner:  planner.New(fs),
		engine:   engine.New(fs, c, ed, an, val, txns),
		txns:     txns,
		registry: registry,
		log:      logging.Get(logging.CategoryFacade),
	}, nil
}

// Close releases resources owned by the Facade.
func (f *Facade) Close() {
	f.parser.Close()
	f.txns.StopSweep()
	logging.CloseAudit()
}

// Execute validates and plans req, opens a transaction when requested, and
// dispatches the plan through the engine. Validation failures (schema,
// dependency, cycle) return before any transaction is opened or any file
// is touched, per spec.md §7's propagation policy.
func (f *Facade) Execute(ctx context.Context, req model.Request, progress model.ProgressCallback) model.AggregateResult {
	opts := req.Options.Normalized()
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = f.cfg.Execution.MaxConcurrency
	}
	if opts.TimeoutMs == 0 {
		opts.TimeoutMs = f.cfg.Execution.DefaultTimeoutMs
	}

	plan, err := f.planner.Plan(req)
	if err != nil {
		f.log.Warn("request rejected at planning: %v", err)
		return model.AggregateResult{Success: false, Error: model.AsError(err)}
	}

	var txn *transaction.Transaction
	if opts.Transaction {
		ops := make([]model.Operation, 0, len(plan.Order))
		for _, id := range plan.Order {
			ops = append(ops, plan.Operations[id])
		}
		txn, err = f.txns.Begin(ops)
		if err != nil {
			return model.AggregateResult{Success: false, Error: model.AsError(err)}
		}
		if err := f.txns.CreateSnapshots(txn.ID, ops); err != nil {
			return model.AggregateResult{Success: false, Error: model.AsError(err)}
		}
	}

	f.log.Info("executing request: %d operations, transaction=%v, continueOnError=%v", len(plan.Order), opts.Transaction, opts.ContinueOnError)
	return f.engine.Execute(ctx, plan, opts, txn, progress)
}

// Registry exposes the validator rule registry so callers (e.g. the CLI's
// validate-request command) can list available checks without a request.
func (f *Facade) Registry() *validator.Registry {
	return f.registry
}

// Plan runs every planning-time check (schema validation, path containment,
// regex compilation, dependency and cycle validation) without opening a
// transaction or touching the filesystem, for callers that want to validate
// a request before committing to running it.
func (f *Facade) Plan(req model.Request) (*planner.Plan, error) {
	return f.planner.Plan(req)
}
