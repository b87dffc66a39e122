package engagement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/redclawsec/redclaw/api/schemas"
	"github.com/redclawsec/redclaw/internal/analyzer"
	"github.com/redclawsec/redclaw/internal/events"
	"github.com/redclawsec/redclaw/internal/phase"
)

// Oracle plans the next actions for a context snapshot.
type Oracle interface {
	Decide(ctx context.Context, snap schemas.ContextSnapshot) ([]schemas.ActionProposal, error)
}

// Dispatcher turns proposals into invocation requests.
type Dispatcher interface {
	Dispatch(p schemas.ActionProposal) schemas.InvocationRequest
}

// Invoker executes one dispatched request.
type Invoker interface {
	Invoke(ctx context.Context, req schemas.InvocationRequest, timeout time.Duration) schemas.ToolInvocationResult
}

// Knowledge is the optional persistence collaborator. A nil Knowledge
// disables persistence; Record and RetrieveRelevant failures are logged and
// otherwise ignored.
type Knowledge interface {
	Record(ctx context.Context, rec schemas.DiscoveryRecord) error
	RetrieveRelevant(ctx context.Context, target string) (string, error)
}

// Config tunes the loop. Zero values fall back to the defaults below.
type Config struct {
	IterationBudget   int
	ConcurrencyCap    int
	FlagThreshold     int
	InvocationTimeout time.Duration
	ExcerptLength     int
	HistorySize       int
	SampleLimit       int
	RecentWindow      int
	Phase             phase.Config
}

func (c *Config) applyDefaults() {
	if c.IterationBudget <= 0 {
		c.IterationBudget = 50
	}
	if c.ConcurrencyCap <= 0 {
		c.ConcurrencyCap = 4
	}
	if c.FlagThreshold <= 0 {
		c.FlagThreshold = 3
	}
	if c.InvocationTimeout <= 0 {
		c.InvocationTimeout = 2 * time.Minute
	}
	if c.ExcerptLength <= 0 {
		c.ExcerptLength = 2000
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = 10
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = 5
	}
}

// Loop owns one engagement. Construct with NewLoop, run once with Run.
type Loop struct {
	cfg        Config
	logger     *zap.Logger
	oracle     Oracle
	dispatcher Dispatcher
	invoker    Invoker
	knowledge  Knowledge
	bus        *events.Bus
	machine    *phase.Machine
	state      *State

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop assembles a loop for one target. The bus and knowledge store may be
// nil; oracle, dispatcher and invoker are required.
func NewLoop(logger *zap.Logger, cfg Config, target, objective string,
	oracle Oracle, dispatcher Dispatcher, invoker Invoker,
	knowledge Knowledge, bus *events.Bus) (*Loop, error) {

	if oracle == nil || dispatcher == nil || invoker == nil {
		return nil, fmt.Errorf("oracle, dispatcher and invoker are required")
	}
	cfg.applyDefaults()

	return &Loop{
		cfg:        cfg,
		logger:     logger.Named("engagement"),
		oracle:     oracle,
		dispatcher: dispatcher,
		invoker:    invoker,
		knowledge:  knowledge,
		bus:        bus,
		machine:    phase.NewMachine(logger, cfg.Phase),
		state: &State{
			Target:    target,
			Objective: objective,
			History:   NewToolRing(cfg.HistorySize),
		},
		sleep: sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (l *Loop) publish(kind events.Kind, payload interface{}) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.Event{
		Kind:      kind,
		Iteration: l.state.Iteration,
		Phase:     l.machine.Current(),
		Payload:   payload,
	})
}

// Run drives the loop to a terminal phase or until the iteration budget is
// spent. Context cancellation aborts between steps and returns the context
// error alongside a failed result.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	l.machine.Transition(phase.Reconnaissance, "engagement started")

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if done := l.terminal(); done {
			break
		}
		if l.state.Iteration >= l.cfg.IterationBudget {
			l.machine.HandleError("iteration budget exhausted", false)
			break
		}

		l.state.Iteration++
		l.publish(events.KindIterationStart, nil)

		proposals := l.plan(ctx)
		results := l.execute(ctx, proposals)
		l.analyze(ctx, results)
		l.updatePhase()

		l.publish(events.KindIterationEnd, nil)
	}

	return l.finish(started, runErr), runErr
}

// terminal applies the stop conditions. Reaching the flag threshold drives
// the machine into Completed through the legal path when one exists.
func (l *Loop) terminal() bool {
	cur := l.machine.Current()
	if cur == phase.Completed || cur == phase.Error {
		return true
	}
	if len(l.state.Discoveries.Flags) >= l.cfg.FlagThreshold {
		l.driveCompleted("flag threshold reached")
		return true
	}
	return false
}

// driveCompleted walks the machine into Completed. When the current phase has
// no legal path it enters the terminal phase directly; success is success.
func (l *Loop) driveCompleted(reason string) {
	if l.machine.Current() != phase.Reporting {
		l.machine.Transition(phase.Reporting, reason)
	}
	if !l.machine.Transition(phase.Completed, reason) {
		l.machine.Complete(reason)
	}
}

// plan asks the oracle for the next actions. A failed decision counts as a
// retryable planning error and backs off before the next attempt.
func (l *Loop) plan(ctx context.Context) []schemas.ActionProposal {
	snap := l.snapshot(ctx)

	proposals, err := l.oracle.Decide(ctx, snap)
	if err != nil {
		l.logger.Warn("Planning failed", zap.Int("iteration", l.state.Iteration), zap.Error(err))
		l.publish(events.KindError, events.ErrorPayload{Message: err.Error(), Recoverable: true})
		outcome := l.machine.HandleError(err.Error(), true)
		if outcome == phase.OutcomeRetry {
			attempt := l.machine.Retries(l.machine.Current())
			if serr := l.sleep(ctx, l.machine.BackoffDelay(attempt-1)); serr != nil {
				return nil
			}
		}
		return nil
	}

	names := make([]string, len(proposals))
	for i, p := range proposals {
		names[i] = p.Name
	}
	l.publish(events.KindPlanComplete, events.PlanPayload{Actions: names})
	return proposals
}

// snapshot renders the bounded oracle view of the current state.
func (l *Loop) snapshot(ctx context.Context) schemas.ContextSnapshot {
	d := &l.state.Discoveries
	snap := schemas.ContextSnapshot{
		Target:       l.state.Target,
		Objective:    l.state.Objective,
		Phase:        string(l.machine.Current()),
		Iteration:    l.state.Iteration,
		Budget:       l.cfg.IterationBudget,
		PortCount:    len(d.Ports),
		ServiceCount: len(d.Services),
		VulnCount:    len(d.Vulnerabilities),
		CredCount:    len(d.Credentials),
		FlagCount:    len(d.Flags),
		Ports:        d.PortStrings(l.cfg.SampleLimit),
		Services:     d.ServiceStrings(l.cfg.SampleLimit),
		Vulns:        d.VulnStrings(l.cfg.SampleLimit),
		Flags:        d.FlagSample(l.cfg.SampleLimit),
		RecentTools:  l.state.History.Recent(l.cfg.RecentWindow),
	}

	if l.knowledge != nil {
		kc, err := l.knowledge.RetrieveRelevant(ctx, l.state.Target)
		if err != nil {
			l.logger.Debug("Knowledge retrieval failed", zap.Error(err))
		} else {
			snap.KnowledgeContext = kc
		}
	}
	return snap
}

// execute dispatches every proposal and runs the executable ones with a
// bounded fan-out. Results come back in proposal order.
func (l *Loop) execute(ctx context.Context, proposals []schemas.ActionProposal) []schemas.ToolInvocationResult {
	if len(proposals) == 0 {
		return nil
	}

	requests := make([]schemas.InvocationRequest, len(proposals))
	for i, p := range proposals {
		requests[i] = l.dispatcher.Dispatch(p)
	}

	results := make([]schemas.ToolInvocationResult, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.ConcurrencyCap)

	for i, req := range requests {
		switch {
		case req.Internal:
			results[i] = l.handleInternal(req)
		case req.Unsupported:
			l.logger.Warn("Skipping unsupported action", zap.String("action", req.Action))
			results[i] = schemas.ToolInvocationResult{
				RequestID: req.ID, Action: req.Action,
				Error: "unsupported action",
			}
		case req.ValidationError != "":
			results[i] = schemas.ToolInvocationResult{
				RequestID: req.ID, Action: req.Action,
				Error: req.ValidationError,
			}
		default:
			i, req := i, req
			g.Go(func() error {
				l.publish(events.KindToolStart, events.ToolPayload{
					Action: req.Action, Command: req.Command,
				})
				res := l.invoker.Invoke(gctx, req, l.cfg.InvocationTimeout)
				results[i] = res
				l.publish(events.KindToolComplete, events.ToolPayload{
					Action:   req.Action,
					Command:  req.Command,
					Success:  res.Success,
					Duration: res.Duration,
					Error:    res.Error,
				})
				return nil
			})
		}
	}
	g.Wait()

	// Credential hints count only when the invocation actually worked.
	for i, req := range requests {
		if req.Credential != nil && results[i].Success {
			if l.state.Discoveries.AddCredential(*req.Credential) {
				l.recordDiscovery(ctx, "credential",
					req.Credential.Host+"/"+req.Credential.User,
					req.Credential.User)
			}
		}
	}
	return results
}

// handleInternal services record_flag without touching the executor.
func (l *Loop) handleInternal(req schemas.InvocationRequest) schemas.ToolInvocationResult {
	res := schemas.ToolInvocationResult{RequestID: req.ID, Action: req.Action}
	if req.Flag == "" {
		res.Error = "record_flag without a flag value"
		return res
	}
	if l.state.Discoveries.AddFlag(req.Flag) {
		l.flagFound(req.Flag)
	}
	res.Success = true
	res.Output = "flag recorded"
	return res
}

func (l *Loop) flagFound(flag string) {
	l.logger.Info("Flag captured",
		zap.String("flag", flag),
		zap.Int("total", len(l.state.Discoveries.Flags)))
	l.publish(events.KindFlagFound, events.FlagPayload{
		Flag:  flag,
		Total: len(l.state.Discoveries.Flags),
	})
	l.recordDiscovery(context.Background(), "flag", flag, flag)
}

// analyze interprets every result, merges new discoveries and appends the
// truncated trace to the history ring.
func (l *Loop) analyze(ctx context.Context, results []schemas.ToolInvocationResult) {
	for _, res := range results {
		if res.Action == "" {
			continue
		}
		rep := analyzer.Analyze(res.Output, &l.state.Discoveries)

		for _, f := range rep.NewFlags {
			// Merge below adds it; announce here so the count is right
			// after each AddFlag.
			if l.state.Discoveries.AddFlag(f) {
				l.flagFound(f)
			}
		}
		l.state.Discoveries.Merge(rep)

		for _, p := range rep.NewPorts {
			l.recordDiscovery(ctx, "port", fmt.Sprintf("%d/%s", p.Number, p.Protocol), "open")
		}
		for _, s := range rep.NewServices {
			l.recordDiscovery(ctx, "service", fmt.Sprintf("%d", s.Port), s.Name+" "+s.Version)
		}
		for _, v := range rep.NewVulns {
			l.recordDiscovery(ctx, "vulnerability", v.ID, v.Severity)
		}

		l.state.History.Append(schemas.ToolCallRecord{
			Tool:      res.Action,
			Excerpt:   truncate(res.Output, l.cfg.ExcerptLength),
			Success:   res.Success,
			Timestamp: time.Now(),
		})
	}
}

func (l *Loop) recordDiscovery(ctx context.Context, category, key, value string) {
	if l.knowledge == nil {
		return
	}
	rec := schemas.DiscoveryRecord{
		Target:    l.state.Target,
		Category:  category,
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
	}
	if err := l.knowledge.Record(ctx, rec); err != nil {
		l.logger.Debug("Knowledge record failed",
			zap.String("category", category),
			zap.Error(err))
	}
}

// updatePhase advances the machine toward the phase the evidence supports.
// The transition table stays the authority: the machine walks the legal path
// hop by hop and stops where no legal step exists.
func (l *Loop) updatePhase() {
	inferred := analyzer.InferPhase(&l.state.Discoveries, l.cfg.FlagThreshold)
	cur := l.machine.Current()
	if inferred == cur {
		return
	}
	if inferred == phase.Completed {
		// Handled by the termination check so Reporting is not skipped.
		return
	}

	for _, hop := range phase.Path(cur, inferred) {
		from := l.machine.Current()
		if !l.machine.Transition(hop, "discovery evidence") {
			return
		}
		l.publish(events.KindPhaseChange, events.PhaseChangePayload{
			From:   from,
			To:     hop,
			Reason: "discovery evidence",
		})
		l.logger.Info("Phase advanced",
			zap.String("from", string(from)),
			zap.String("to", string(hop)))
	}
}

func (l *Loop) finish(started time.Time, runErr error) *Result {
	res := &Result{
		Target:       l.state.Target,
		Objective:    l.state.Objective,
		Iterations:   l.state.Iteration,
		Discoveries:  l.state.Discoveries,
		PhaseHistory: l.machine.History(),
		FinalPhase:   l.machine.Current(),
		ToolHistory:  l.state.History.All(),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}

	switch {
	case runErr != nil:
		res.Outcome = OutcomeFailed
		res.Err = runErr.Error()
	case res.FinalPhase == phase.Completed:
		res.Outcome = OutcomeCompleted
	default:
		res.Outcome = OutcomeFailed
		if msg := l.machine.ErrorMessage(); msg != "" {
			res.Err = msg
		}
	}

	kind := events.KindLoopComplete
	if res.Outcome == OutcomeFailed {
		kind = events.KindLoopFailed
	}
	l.publish(kind, events.LoopPayload{
		Outcome:    string(res.Outcome),
		Iterations: res.Iterations,
		Flags:      len(res.Discoveries.Flags),
	})

	l.logger.Info("Engagement finished",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("iterations", res.Iterations),
		zap.String("final_phase", string(res.FinalPhase)),
		zap.Int("flags", len(res.Discoveries.Flags)))
	return res
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
