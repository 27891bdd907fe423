package pipeline

import (
	"context"
	"fmt"

	"digestbot/internal/model"
)

// Stage names.
const (
	StageFetchArticles    = "fetch_articles"
	StageStoreArticles    = "store_articles"
	StageFetchLastSummary = "fetch_last_summary"
	StageSearchGate       = "search_gate"
	StageSearch           = "search"
	StageSummarize        = "summarize"
	StageSaveSummary      = "save_summary"
	StageDeliveryGate     = "delivery_gate"
	StageLoadSummary      = "load_summary"
	StageFreshArticles    = "get_fresh_articles"
	StageScore            = "score"
	StageSaveScores       = "save_scores"
	StageFilterTop        = "filter_top"
	StageCompose          = "compose"
	StageDeliver          = "deliver"
	StageMarkPosted       = "mark_posted"

	stageEnd = ""
)

// State accumulates what one run has produced so far.
type State struct {
	RunID string

	Articles    []model.Article
	Stored      int
	LastSummary *model.SearchSummary

	SearchRan     bool
	SearchResults []model.SearchResult
	Summary       string

	DeliveryRan bool
	Fresh       []model.Article
	Scored      []model.Article
	Top         []model.Article
	Post        string
	Delivery    *model.Delivery
}

// StageError records the stage that failed and why.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the value threaded through the stages: the state so far, or
// the error that stopped the run together with the state at that point.
type Result struct {
	State State
	Err   *StageError
}

// Failed reports whether an earlier stage failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

func (r Result) fail(stage string, err error) Result {
	r.Err = &StageError{Stage: stage, Err: err}
	return r
}

// Stage transforms a result. A stage given a failed result returns it
// unchanged.
type Stage func(ctx context.Context, r Result) Result

// Edge is the branch a gate picks.
type Edge int

// Gate edges.
const (
	EdgeContinue Edge = iota
	EdgeSkip
	EdgeEnd
)

func (e Edge) String() string {
	switch e {
	case EdgeContinue:
		return "continue"
	case EdgeSkip:
		return "skip"
	case EdgeEnd:
		return "end"
	default:
		return fmt.Sprintf("edge(%d)", int(e))
	}
}

// Gate inspects a result and picks the next edge.
type Gate func(ctx context.Context, r Result) (Result, Edge)

// node is one step of the workflow. Plain stages always follow next;
// gates follow the target of the edge they return.
type node struct {
	stage Stage
	gate  Gate
	next  string
	edges map[Edge]string
}
