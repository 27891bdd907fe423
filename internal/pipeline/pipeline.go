// Package pipeline runs the daily digest workflow: collect articles,
// refresh the topic summary once a day, then score, select, compose and
// deliver the digest once a day.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"digestbot/internal/config"
	"digestbot/internal/gate"
	"digestbot/internal/model"
	"digestbot/internal/storage"
)

// ArticleFetcher collects articles from the configured sources.
type ArticleFetcher interface {
	FetchAll(ctx context.Context, sources []model.FeedSource) []model.Article
}

// SearchCycle runs the search, summarize and save steps of the topic
// summary refresh.
type SearchCycle interface {
	Collect(ctx context.Context, queries []string) []model.SearchResult
	Summarize(ctx context.Context, queries []string, results []model.SearchResult) (string, bool)
	Save(ctx context.Context, text string) (*model.SearchSummary, error)
}

// Scorer rates articles against the topic summary.
type Scorer interface {
	Score(ctx context.Context, articles []model.Article, summary string) []model.Article
}

// Composer writes the digest text.
type Composer interface {
	Compose(ctx context.Context, articles []model.Article) string
}

// Deliverer sends the digest and records it.
type Deliverer interface {
	Deliver(ctx context.Context, text string) (*model.Delivery, error)
}

// Deps are the collaborators a pipeline drives.
type Deps struct {
	Fetcher   ArticleFetcher
	Store     storage.Storage
	Search    SearchCycle
	Scorer    Scorer
	Composer  Composer
	Deliverer Deliverer
}

// Options are the schedule and source settings of a run.
type Options struct {
	Sources      []model.FeedSource
	Queries      []string
	SearchGate   gate.Gate
	DeliveryGate gate.Gate
	Freshness    gate.Freshness
}

// OptionsFromConfig extracts run options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Sources:      cfg.EnabledSources(),
		Queries:      cfg.Search.Queries,
		SearchGate:   gate.Gate{Name: "search", TimeUTC: cfg.Search.TimeUTC},
		DeliveryGate: gate.Gate{Name: "delivery", TimeUTC: cfg.Delivery.TimeUTC},
		Freshness:    cfg.Delivery.Freshness,
	}
}

// Pipeline runs the workflow.
type Pipeline struct {
	deps Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Deps, opts Options, log *slog.Logger) *Pipeline {
	return &Pipeline{deps: deps, opts: opts, log: log, now: time.Now}
}

// SetClock overrides the clock the gates read.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// run carries the per-run logger and clock reading.
type run struct {
	*Pipeline
	log *slog.Logger
	now time.Time
}

// Run executes one pass of the workflow. Every stage sees the result of
// the previous one; once a stage fails the rest pass the failure along
// and it is returned as a *StageError when the workflow ends.
func (p *Pipeline) Run(ctx context.Context) (State, error) {
	id := uuid.NewString()
	r := &run{Pipeline: p, log: p.log.With("run_id", id), now: p.now().UTC()}
	r.log.Info("pipeline started", "now", r.now.Format(time.RFC3339))

	start := time.Now()
	res := r.dispatch(ctx, Result{State: State{RunID: id}})
	state := res.State

	if res.Err != nil {
		return state, res.Err
	}
	r.log.Info("pipeline finished",
		"duration", time.Since(start).Round(time.Millisecond),
		"articles", len(state.Articles),
		"stored", state.Stored,
		"search_ran", state.SearchRan,
		"delivered", state.Delivery != nil,
	)
	return state, nil
}

func (r *run) dispatch(ctx context.Context, res Result) Result {
	nodes := r.graph()
	cur := StageFetchArticles
	for cur != stageEnd {
		n, ok := nodes[cur]
		if !ok {
			return res.fail(cur, errors.New("unknown stage"))
		}
		if n.gate != nil {
			var edge Edge
			res, edge = r.runGate(ctx, cur, n.gate, res)
			cur = n.edges[edge]
			continue
		}
		res = r.runStage(ctx, cur, n.stage, res)
		cur = n.next
	}
	return res
}

func (r *run) graph() map[string]node {
	return map[string]node{
		StageFetchArticles:    {stage: r.fetchArticles, next: StageStoreArticles},
		StageStoreArticles:    {stage: r.storeArticles, next: StageFetchLastSummary},
		StageFetchLastSummary: {stage: r.fetchLastSummary, next: StageSearchGate},
		StageSearchGate: {gate: r.searchGate, edges: map[Edge]string{
			EdgeContinue: StageSearch,
			EdgeSkip:     StageDeliveryGate,
		}},
		StageSearch:      {stage: r.search, next: StageSummarize},
		StageSummarize:   {stage: r.summarize, next: StageSaveSummary},
		StageSaveSummary: {stage: r.saveSummary, next: StageDeliveryGate},
		StageDeliveryGate: {gate: r.deliveryGate, edges: map[Edge]string{
			EdgeContinue: StageLoadSummary,
		}},
		StageLoadSummary:   {stage: r.loadSummary, next: StageFreshArticles},
		StageFreshArticles: {stage: r.freshArticles, next: StageScore},
		StageScore:         {stage: r.score, next: StageSaveScores},
		StageSaveScores:    {stage: r.saveScores, next: StageFilterTop},
		StageFilterTop: {gate: r.filterTop, edges: map[Edge]string{
			EdgeContinue: StageCompose,
		}},
		StageCompose:    {stage: r.compose, next: StageDeliver},
		StageDeliver:    {stage: r.deliver, next: StageMarkPosted},
		StageMarkPosted: {stage: r.markPosted, next: stageEnd},
	}
}

func (r *run) runStage(ctx context.Context, name string, stage Stage, res Result) (out Result) {
	if res.Failed() {
		return res
	}
	defer func() {
		if v := recover(); v != nil {
			out = res.fail(name, fmt.Errorf("panic: %v", v))
		}
	}()
	r.log.Debug("stage started", "stage", name)
	return stage(ctx, res)
}

// A failed result reaching a gate ends the workflow.
func (r *run) runGate(ctx context.Context, name string, g Gate, res Result) (out Result, edge Edge) {
	if res.Failed() {
		return res, EdgeEnd
	}
	defer func() {
		if v := recover(); v != nil {
			out, edge = res.fail(name, fmt.Errorf("panic: %v", v)), EdgeEnd
		}
	}()
	out, edge = g(ctx, res)
	if out.Failed() {
		edge = EdgeEnd
	}
	r.log.Debug("gate decided", "gate", name, "edge", edge)
	return out, edge
}
