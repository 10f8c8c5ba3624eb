package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/network"
)

// QueryParams are the caller-chosen parameters for one trace operation.
type QueryParams struct {
	// Category is the required filter selector; RunQuery rejects an empty
	// category without leaving Ready.
	Category string
	// Targets are the group keys that have a local destination for fetched
	// features. Trace results in groups without a target are skipped, not
	// failed.
	Targets []string
}

// QueryResult is the outcome of one trace operation.
type QueryResult struct {
	// OperationID tags the operation in logs and sub-request errors.
	OperationID string
	// Groups holds the fetched features per group key, for every group whose
	// sub-request succeeded.
	Groups map[string][]network.ResolvedItem
	// Skipped lists group keys that had trace results but no local target.
	Skipped []string
	// Errors collects one SubRequestError per failed fan-out unit. A
	// non-empty Errors does not mean the operation failed; the join always
	// waits for every sub-request.
	Errors []error
}

// RunQuery issues one trace from the resolved starting element, then fans out
// a fetch per matched result group and joins on all of them. It blocks until
// the join completes (or the query itself fails) and returns the coordinator
// to Ready in every non-terminal outcome. A RunQuery while another query is
// in flight returns ErrBusy without dispatching anything.
func (c *Coordinator) RunQuery(ctx context.Context, params QueryParams) (*QueryResult, error) {
	logger := ctxlog.FromContext(ctx)

	c.mu.Lock()
	if c.state == Querying {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if c.state != Ready {
		c.mu.Unlock()
		return nil, &PreconditionError{Field: "state: " + c.state.String()}
	}
	if params.Category == "" {
		// Local rejection only; the coordinator stays Ready.
		c.status = OperationStatus{Message: "parameters not set: category", At: time.Now()}
		c.mu.Unlock()
		return nil, &PreconditionError{Field: "category"}
	}
	epoch := c.epoch
	start := c.start
	cfg := c.cfg.WithFilter(params.Category)
	c.transitionLocked(Querying, "running trace")
	c.mu.Unlock()

	opID := uuid.NewString()
	logger = logger.With("operation", opID, "category", params.Category)
	c.opts.Metrics.QueryStarted()
	defer c.opts.Metrics.QueryFinished()

	logger.Info("▶️ Starting trace", "source", start.Source, "element", start.Identifier)
	items, err := awaitCtx(ctx, func() ([]network.ResultItem, error) { return c.provider.Trace(ctx, start, cfg) })
	if err != nil {
		qerr := &QueryError{Err: err}
		c.opts.Metrics.QueryFailed()
		logger.Error("Trace failed.", "error", err)
		c.commit(epoch, func() { c.transitionLocked(Ready, qerr.Error()) })
		return nil, qerr
	}

	result := &QueryResult{OperationID: opID, Groups: make(map[string][]network.ResolvedItem)}

	if len(items) == 0 {
		c.opts.Metrics.QuerySucceeded()
		logger.Info("✅ Trace completed with no output")
		c.commit(epoch, func() { c.transitionLocked(Ready, "trace completed with no output") })
		return result, nil
	}

	// Group synchronously before dispatching anything: the join's expected
	// completion count is fixed before the first completion can arrive.
	targets := make(map[string]bool, len(params.Targets))
	for _, t := range params.Targets {
		targets[t] = true
	}
	groups, skipped := network.GroupItems(items, func(key string) bool { return targets[key] })
	result.Skipped = skipped
	logger.Debug("Trace results grouped.", "elements", len(items), "groups", len(groups), "skipped", len(skipped))

	c.join(ctx, logger, groups, result)

	c.opts.Metrics.QuerySucceeded()
	msg := fmt.Sprintf("trace complete: %d elements across %d groups", len(items), len(groups))
	if len(result.Errors) > 0 {
		msg = fmt.Sprintf("%s (%d group fetches failed)", msg, len(result.Errors))
	}
	logger.Info("🏁 Trace operation finished.", "groups", len(groups), "failed", len(result.Errors))
	c.commit(epoch, func() { c.transitionLocked(Ready, msg) })
	return result, nil
}

// subResult carries one fan-out completion through the join channel.
type subResult struct {
	key      string
	resolved []network.ResolvedItem
	err      error
}

// join dispatches one FetchGroup per grouped request and waits for exactly
// len(groups) completions, in whatever order they arrive. A failed
// sub-request is recorded and never cancels its siblings: best-effort
// fan-out, wait-for-all. With zero groups the join completes immediately.
func (c *Coordinator) join(ctx context.Context, logger *slog.Logger, groups []network.GroupedRequest, result *QueryResult) {
	results := make(chan subResult, len(groups))

	for _, g := range groups {
		go func(g network.GroupedRequest) {
			resolved, err := c.provider.FetchGroup(ctx, g.Key, g.Items)
			results <- subResult{key: g.Key, resolved: resolved, err: err}
		}(g)
	}

	for range groups {
		r := <-results
		if r.err != nil {
			serr := &SubRequestError{Group: r.key, Err: r.err}
			result.Errors = append(result.Errors, serr)
			c.opts.Metrics.SubRequestFailed()
			logger.Error("Group fetch failed.", "group", r.key, "error", r.err)
			continue
		}
		result.Groups[r.key] = r.resolved
		c.opts.Metrics.SubRequestSucceeded()
		logger.Debug("Group fetch complete.", "group", r.key, "features", len(r.resolved))
	}
}
