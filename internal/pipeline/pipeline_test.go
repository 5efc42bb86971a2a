package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"optobot/internal/feed"
	"optobot/internal/generator"
	"optobot/internal/scheduler"
	"optobot/internal/search"
	logx "optobot/pkg/logx"
)

type fakeCollector struct {
	ranked []feed.Ranked
	err    error
}

func (f *fakeCollector) Collect(ctx context.Context) ([]feed.Ranked, error) {
	return f.ranked, f.err
}

type fakeComposer struct {
	failFor map[string]bool
	labels  []string
}

func (f *fakeComposer) Compose(ctx context.Context, label, excerpt, corpus, newsContext string) (generator.Content, error) {
	f.labels = append(f.labels, label)
	if f.failFor[label] {
		return generator.Content{}, errors.New("model unavailable")
	}
	return generator.Content{TokenLabel: label, Body: "post about " + label}, nil
}

type fakeNews struct {
	enabled bool
	queries []string
	results []search.Result
	err     error
}

func (f *fakeNews) Enabled() bool { return f.enabled }

func (f *fakeNews) News(ctx context.Context, query string) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

type fakeSink struct {
	immediate []*generator.Content
	staggered [][]generator.Content
}

func (f *fakeSink) ScheduleImmediate(ctx context.Context, content *generator.Content) scheduler.Job {
	f.immediate = append(f.immediate, content)
	return scheduler.Job{ID: "imm", State: scheduler.StatePosted}
}

func (f *fakeSink) ScheduleStaggered(contents []generator.Content) []scheduler.Job {
	f.staggered = append(f.staggered, contents)
	out := make([]scheduler.Job, len(contents))
	for i := range out {
		out[i] = scheduler.Job{ID: "stag", State: scheduler.StatePending}
	}
	return out
}

func eligible(symbol string) feed.Ranked {
	return feed.Ranked{
		Candidate: feed.Candidate{
			AuthorHandle: "kol_" + symbol,
			Excerpt:      "excerpt " + symbol,
			Token:        &feed.TokenRef{Symbol: symbol, Chain: "solana", ContractAddress: "0x" + symbol},
		},
		Corpus:   "corpus " + symbol,
		Eligible: true,
	}
}

func TestRunSchedulesFirstNowRestStaggered(t *testing.T) {
	col := &fakeCollector{ranked: []feed.Ranked{
		eligible("AAA"), eligible("BBB"), eligible("CCC"), eligible("DDD"),
	}}
	sink := &fakeSink{}
	p := New(col, &fakeComposer{}, nil, sink, logx.Nop())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Collected != 4 || rep.Composed != 4 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(sink.immediate) != 1 || sink.immediate[0] == nil || sink.immediate[0].TokenLabel != "AAA" {
		t.Fatalf("immediate = %+v", sink.immediate)
	}
	if len(sink.staggered) != 1 || len(sink.staggered[0]) != 3 {
		t.Fatalf("staggered = %+v", sink.staggered)
	}
	if sink.staggered[0][0].TokenLabel != "BBB" || sink.staggered[0][2].TokenLabel != "DDD" {
		t.Fatalf("stagger order = %+v", sink.staggered[0])
	}
	if len(rep.Jobs) != 4 {
		t.Fatalf("jobs = %d, want 4", len(rep.Jobs))
	}
}

func TestRunComposeFailureDropsCandidateOnly(t *testing.T) {
	col := &fakeCollector{ranked: []feed.Ranked{
		eligible("AAA"), eligible("BBB"), eligible("CCC"), eligible("DDD"),
	}}
	sink := &fakeSink{}
	comp := &fakeComposer{failFor: map[string]bool{"BBB": true}}
	p := New(col, comp, nil, sink, logx.Nop())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Composed != 3 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if sink.immediate[0].TokenLabel != "AAA" {
		t.Fatalf("immediate = %+v", sink.immediate[0])
	}
	got := sink.staggered[0]
	if len(got) != 2 || got[0].TokenLabel != "CCC" || got[1].TokenLabel != "DDD" {
		t.Fatalf("staggered after drop = %+v", got)
	}
}

func TestRunSkipsIneligibleCandidates(t *testing.T) {
	noContract := feed.Ranked{
		Candidate: feed.Candidate{AuthorHandle: "whale"},
		Reason:    "no contract address",
	}
	col := &fakeCollector{ranked: []feed.Ranked{noContract, eligible("AAA")}}
	sink := &fakeSink{}
	comp := &fakeComposer{}
	p := New(col, comp, nil, sink, logx.Nop())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Collected != 2 || rep.Eligible != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if len(comp.labels) != 1 || comp.labels[0] != "AAA" {
		t.Fatalf("composed labels = %v", comp.labels)
	}
}

func TestRunFallsBackWhenNothingComposes(t *testing.T) {
	col := &fakeCollector{ranked: []feed.Ranked{eligible("AAA")}}
	sink := &fakeSink{}
	comp := &fakeComposer{failFor: map[string]bool{"AAA": true}}
	p := New(col, comp, nil, sink, logx.Nop())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.immediate) != 1 || sink.immediate[0] != nil {
		t.Fatalf("immediate = %+v, want one nil payload", sink.immediate)
	}
	if len(sink.staggered) != 0 {
		t.Fatalf("staggered = %+v, want none", sink.staggered)
	}
	if len(rep.Jobs) != 1 {
		t.Fatalf("jobs = %d", len(rep.Jobs))
	}
}

func TestRunCollectErrorAbortsPass(t *testing.T) {
	col := &fakeCollector{err: errors.New("feed down")}
	sink := &fakeSink{}
	p := New(col, &fakeComposer{}, nil, sink, logx.Nop())

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("want error")
	}
	if len(sink.immediate) != 0 || len(sink.staggered) != 0 {
		t.Fatal("nothing must be scheduled on collect failure")
	}
}

func TestRunNewsEnrichment(t *testing.T) {
	col := &fakeCollector{ranked: []feed.Ranked{eligible("AAA")}}
	news := &fakeNews{enabled: true, results: []search.Result{{Title: "AAA rallies", Snippet: "up 40%"}}}
	sink := &fakeSink{}
	p := New(col, &fakeComposer{}, news, sink, logx.Nop())

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(news.queries) != 1 || !strings.Contains(news.queries[0], "AAA") {
		t.Fatalf("queries = %v", news.queries)
	}
	if !strings.Contains(news.queries[0], "crypto") {
		t.Fatalf("query missing crypto suffix: %v", news.queries[0])
	}
}

func TestRunNewsFailureDegradesToEmptyContext(t *testing.T) {
	col := &fakeCollector{ranked: []feed.Ranked{eligible("AAA")}}
	news := &fakeNews{enabled: true, err: errors.New("search down")}
	sink := &fakeSink{}
	p := New(col, &fakeComposer{}, news, sink, logx.Nop())

	rep, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Composed != 1 {
		t.Fatalf("report = %+v, search failure must not drop the candidate", rep)
	}
}
