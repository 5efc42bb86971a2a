package feed

import (
	"context"
	"errors"
	"strings"
	"testing"

	logx "optobot/pkg/logx"
)

type fakeSource struct {
	posts   []Candidate
	corpora map[string][]string
	fail    map[string]error
	calls   []string
}

func (f *fakeSource) RankedPosts(ctx context.Context) ([]Candidate, error) {
	return f.posts, nil
}

func (f *fakeSource) PostsForToken(ctx context.Context, ca string, limit int) ([]string, error) {
	f.calls = append(f.calls, ca)
	if err := f.fail[ca]; err != nil {
		return nil, err
	}
	return f.corpora[ca], nil
}

func cand(author string, score int, ca string) Candidate {
	c := Candidate{AuthorHandle: author, EngagementScore: score, Excerpt: "gm"}
	if ca != "" {
		c.Token = &TokenRef{Symbol: "TKN", Chain: "eth", ContractAddress: ca}
	}
	return c
}

func TestRankOrderAndCap(t *testing.T) {
	var posts []Candidate
	for i := 0; i < 15; i++ {
		posts = append(posts, cand("a", i, ""))
	}
	got := Rank(posts, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].EngagementScore > got[i-1].EngagementScore {
			t.Fatalf("not descending at %d: %d > %d", i, got[i].EngagementScore, got[i-1].EngagementScore)
		}
	}
}

func TestRankStableTies(t *testing.T) {
	posts := []Candidate{
		cand("first", 100, ""),
		cand("second", 100, ""),
		cand("third", 100, ""),
	}
	got := Rank(posts, 10)
	if got[0].AuthorHandle != "first" || got[1].AuthorHandle != "second" || got[2].AuthorHandle != "third" {
		t.Fatalf("tie order not stable: %v", []string{got[0].AuthorHandle, got[1].AuthorHandle, got[2].AuthorHandle})
	}
}

func TestCollectCorpusAndSkips(t *testing.T) {
	src := &fakeSource{
		posts: []Candidate{
			cand("whale", 9000, "0xaaa"),
			cand("anon", 5000, ""),       // no contract: reported, not eligible
			cand("kol", 3000, "0xbbb"),   // corpus fetch fails
			cand("small", 1000, "0xccc"), // fine
		},
		corpora: map[string][]string{
			"0xaaa": {"to the moon", "ape in"},
			"0xccc": {"slow burn"},
		},
		fail: map[string]error{"0xbbb": errors.New("upstream 503")},
	}
	agg := NewAggregator(src, logx.Nop(), 10, 100)

	out, err := agg.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4 (skipped candidates stay visible)", len(out))
	}
	if !out[0].Eligible || out[0].Corpus != "to the moon\nape in" {
		t.Fatalf("first candidate: %+v", out[0])
	}
	if out[1].Eligible || out[1].Reason != "no contract address" {
		t.Fatalf("second candidate: %+v", out[1])
	}
	if out[2].Eligible || out[2].Reason != "corpus fetch failed" {
		t.Fatalf("third candidate should be dropped from generation: %+v", out[2])
	}
	if !out[3].Eligible {
		t.Fatalf("a later candidate must survive an earlier failure: %+v", out[3])
	}
	// No fetch for the contract-less candidate.
	if strings.Join(src.calls, ",") != "0xaaa,0xbbb,0xccc" {
		t.Fatalf("unexpected fetch calls: %v", src.calls)
	}
}

func TestRankedExposesCandidateFields(t *testing.T) {
	src := &fakeSource{
		posts:   []Candidate{cand("whale", 9000, "0xaaa")},
		corpora: map[string][]string{"0xaaa": {"gm"}},
	}
	agg := NewAggregator(src, logx.Nop(), 10, 100)

	out, err := agg.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	r := out[0]
	// Consumers read candidate fields straight off the ranked entry.
	if r.AuthorHandle != "whale" || r.Excerpt != "gm" {
		t.Fatalf("candidate fields not promoted: %+v", r)
	}
	if r.Token == nil || r.Token.ContractAddress != "0xaaa" {
		t.Fatalf("token ref not promoted: %+v", r)
	}
}
