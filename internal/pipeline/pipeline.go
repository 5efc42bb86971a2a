// Package pipeline runs one end-to-end publishing pass: collect ranked
// candidates, enrich and compose content for each, then hand the results to
// the scheduler (first post now, the rest staggered).
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"optobot/internal/feed"
	"optobot/internal/generator"
	"optobot/internal/scheduler"
	"optobot/internal/search"
	logx "optobot/pkg/logx"
)

// Collector yields the ranked candidate set for a pass.
type Collector interface {
	Collect(ctx context.Context) ([]feed.Ranked, error)
}

// Composer turns one candidate's material into publishable content.
type Composer interface {
	Compose(ctx context.Context, label, excerpt, corpus, newsContext string) (generator.Content, error)
}

// NewsProvider supplies recent-news context for a token. A nil or disabled
// provider skips the enrichment stage.
type NewsProvider interface {
	Enabled() bool
	News(ctx context.Context, query string) ([]search.Result, error)
}

// Sink receives composed content for dispatch. A nil content on the
// immediate path draws from the fallback rotation.
type Sink interface {
	ScheduleImmediate(ctx context.Context, content *generator.Content) scheduler.Job
	ScheduleStaggered(contents []generator.Content) []scheduler.Job
}

// Report summarizes one pass.
type Report struct {
	Collected int
	Eligible  int
	Composed  int
	Failed    int
	Jobs      []scheduler.Job
}

func (r Report) String() string {
	return fmt.Sprintf("collected=%d eligible=%d composed=%d failed=%d scheduled=%d",
		r.Collected, r.Eligible, r.Composed, r.Failed, len(r.Jobs))
}

type Pipeline struct {
	collector Collector
	composer  Composer
	news      NewsProvider
	sink      Sink
	log       logx.Logger
}

func New(collector Collector, composer Composer, news NewsProvider, sink Sink, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{collector: collector, composer: composer, news: news, sink: sink, log: log}
}

// Run executes one pass. A compose failure drops that candidate and
// continues; only the collect stage can fail the whole pass. When nothing
// composes, one fallback post is scheduled immediately so the feed never
// goes silent.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var rep Report

	ranked, err := p.collector.Collect(ctx)
	if err != nil {
		return rep, fmt.Errorf("collect candidates: %w", err)
	}
	rep.Collected = len(ranked)

	var contents []generator.Content
	for _, r := range ranked {
		if !r.Eligible {
			continue
		}
		rep.Eligible++

		label := candidateLabel(r)
		newsCtx := p.newsContext(ctx, r)
		content, err := p.composer.Compose(ctx, label, r.Excerpt, r.Corpus, newsCtx)
		if err != nil {
			rep.Failed++
			p.log.Warn("compose failed",
				logx.String("token", label),
				logx.Err(err))
			continue
		}
		rep.Composed++
		contents = append(contents, content)
	}

	if len(contents) == 0 {
		p.log.Info("no content composed, falling back to default rotation")
		job := p.sink.ScheduleImmediate(ctx, nil)
		rep.Jobs = append(rep.Jobs, job)
		return rep, nil
	}

	first := contents[0]
	rep.Jobs = append(rep.Jobs, p.sink.ScheduleImmediate(ctx, &first))
	if len(contents) > 1 {
		rep.Jobs = append(rep.Jobs, p.sink.ScheduleStaggered(contents[1:])...)
	}

	p.log.Info("pass complete",
		logx.Int("collected", rep.Collected),
		logx.Int("composed", rep.Composed),
		logx.Int("failed", rep.Failed),
		logx.Int("scheduled", len(rep.Jobs)))
	return rep, nil
}

func candidateLabel(r feed.Ranked) string {
	if r.Token != nil && r.Token.Symbol != "" {
		return r.Token.Symbol
	}
	return r.AuthorHandle
}

// newsContext fetches recent-news snippets for the candidate's token.
// Lookup failures degrade to an empty context.
func (p *Pipeline) newsContext(ctx context.Context, r feed.Ranked) string {
	if p.news == nil || !p.news.Enabled() {
		return ""
	}
	query := candidateLabel(r)
	if r.Token != nil && r.Token.Chain != "" {
		query = query + " " + r.Token.Chain
	}
	query = strings.TrimSpace(query + " crypto")

	results, err := p.news.News(ctx, query)
	if err != nil {
		p.log.Warn("news lookup failed", logx.String("query", query), logx.Err(err))
		return ""
	}
	return search.ContextText(results)
}
