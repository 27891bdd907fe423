package pipeline

import (
	"context"
	"fmt"
	"time"

	"digestbot/internal/filter"
	"digestbot/internal/gate"
)

func (r *run) fetchArticles(ctx context.Context, res Result) Result {
	res.State.Articles = r.deps.Fetcher.FetchAll(ctx, r.opts.Sources)
	return res
}

func (r *run) storeArticles(ctx context.Context, res Result) Result {
	n, err := r.deps.Store.SaveArticles(ctx, res.State.Articles)
	if err != nil {
		return res.fail(StageStoreArticles, err)
	}
	res.State.Stored = n
	r.log.Info("stored articles", "fetched", len(res.State.Articles), "new", n)
	return res
}

func (r *run) fetchLastSummary(ctx context.Context, res Result) Result {
	sum, err := r.deps.Store.LatestSummary(ctx)
	if err != nil {
		return res.fail(StageFetchLastSummary, err)
	}
	res.State.LastSummary = sum
	return res
}

func (r *run) searchGate(_ context.Context, res Result) (Result, Edge) {
	if len(r.opts.Queries) == 0 {
		r.log.Info("no search queries configured, skipping search")
		return res, EdgeSkip
	}
	var last *time.Time
	if s := res.State.LastSummary; s != nil {
		last = &s.CreatedAt
	}
	if !r.opts.SearchGate.ShouldRun(r.now, last, r.log) {
		return res, EdgeSkip
	}
	return res, EdgeContinue
}

func (r *run) search(ctx context.Context, res Result) Result {
	res.State.SearchRan = true
	res.State.SearchResults = r.deps.Search.Collect(ctx, r.opts.Queries)
	return res
}

func (r *run) summarize(ctx context.Context, res Result) Result {
	if text, ok := r.deps.Search.Summarize(ctx, r.opts.Queries, res.State.SearchResults); ok {
		res.State.Summary = text
	}
	return res
}

func (r *run) saveSummary(ctx context.Context, res Result) Result {
	if res.State.Summary == "" {
		return res
	}
	saved, err := r.deps.Search.Save(ctx, res.State.Summary)
	if err != nil {
		return res.fail(StageSaveSummary, err)
	}
	res.State.LastSummary = saved
	return res
}

func (r *run) deliveryGate(ctx context.Context, res Result) (Result, Edge) {
	d, err := r.deps.Store.LatestDelivery(ctx)
	if err != nil {
		return res.fail(StageDeliveryGate, err), EdgeEnd
	}
	var last *time.Time
	if d != nil {
		last = &d.DeliveredAt
	}
	if !r.opts.DeliveryGate.ShouldRun(r.now, last, r.log) {
		return res, EdgeEnd
	}
	res.State.DeliveryRan = true
	return res, EdgeContinue
}

func (r *run) loadSummary(ctx context.Context, res Result) Result {
	sum, err := r.deps.Store.LatestSummary(ctx)
	if err != nil {
		return res.fail(StageLoadSummary, err)
	}
	res.State.LastSummary = sum
	if sum == nil {
		r.log.Warn("no search summary stored, scoring without topic context")
		res.State.Summary = ""
		return res
	}
	res.State.Summary = sum.Text
	return res
}

func (r *run) freshArticles(ctx context.Context, res Result) Result {
	cutoff := gate.Cutoff(r.opts.Freshness, r.now)
	fresh, err := r.deps.Store.FreshArticles(ctx, cutoff)
	if err != nil {
		return res.fail(StageFreshArticles, err)
	}
	res.State.Fresh = fresh
	r.log.Info("loaded fresh articles", "freshness", r.opts.Freshness, "cutoff", cutoff.Format(time.RFC3339), "count", len(fresh))
	return res
}

func (r *run) score(ctx context.Context, res Result) Result {
	res.State.Scored = r.deps.Scorer.Score(ctx, res.State.Fresh, res.State.Summary)
	return res
}

func (r *run) saveScores(ctx context.Context, res Result) Result {
	if err := r.deps.Store.UpdateScores(ctx, res.State.Scored); err != nil {
		return res.fail(StageSaveScores, err)
	}
	return res
}

func (r *run) filterTop(_ context.Context, res Result) (Result, Edge) {
	res.State.Top = filter.SelectTop(res.State.Scored)
	if len(res.State.Top) == 0 {
		r.log.Info("no scored articles to deliver", "fresh", len(res.State.Fresh))
		return res, EdgeEnd
	}
	r.log.Info("selected top articles", "count", len(res.State.Top))
	return res, EdgeContinue
}

func (r *run) compose(ctx context.Context, res Result) Result {
	res.State.Post = r.deps.Composer.Compose(ctx, res.State.Top)
	return res
}

func (r *run) deliver(ctx context.Context, res Result) Result {
	d, err := r.deps.Deliverer.Deliver(ctx, res.State.Post)
	if err != nil {
		return res.fail(StageDeliver, err)
	}
	res.State.Delivery = d
	return res
}

func (r *run) markPosted(ctx context.Context, res Result) Result {
	guids := make([]string, 0, len(res.State.Top))
	for _, a := range res.State.Top {
		guids = append(guids, a.GUID)
	}
	if err := r.deps.Store.MarkPosted(ctx, guids); err != nil {
		return res.fail(StageMarkPosted, fmt.Errorf("mark %d articles posted: %w", len(guids), err))
	}
	return res
}
