package feed

import (
	"context"
	"sort"
	"strings"

	logx "optobot/pkg/logx"
)

const (
	// DefaultTopK is how many ranked candidates are retained per pass.
	DefaultTopK = 10
	// DefaultCorpusLimit caps the per-candidate corpus fetch.
	DefaultCorpusLimit = 100
)

// Aggregator ranks candidates and collects their supporting corpora.
type Aggregator struct {
	src         Source
	log         logx.Logger
	topK        int
	corpusLimit int
}

func NewAggregator(src Source, log logx.Logger, topK, corpusLimit int) *Aggregator {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if corpusLimit <= 0 {
		corpusLimit = DefaultCorpusLimit
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{src: src, log: log, topK: topK, corpusLimit: corpusLimit}
}

// Rank sorts candidates by engagement score descending (stable, so input
// order breaks ties) and keeps at most k.
func Rank(posts []Candidate, k int) []Candidate {
	if k <= 0 {
		k = DefaultTopK
	}
	out := append([]Candidate(nil), posts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EngagementScore > out[j].EngagementScore
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Collect fetches ranked posts, keeps the top-K, and pulls a per-candidate
// corpus for every candidate with a contract address. A corpus fetch failure
// drops that candidate from generation but never aborts the pass; candidates
// without a contract stay in the output for observability.
func (a *Aggregator) Collect(ctx context.Context) ([]Ranked, error) {
	posts, err := a.src.RankedPosts(ctx)
	if err != nil {
		return nil, err
	}
	top := Rank(posts, a.topK)

	out := make([]Ranked, 0, len(top))
	for _, cand := range top {
		r := Ranked{Candidate: cand}
		switch {
		case !cand.HasContract():
			r.Reason = "no contract address"
			a.log.Info("candidate skipped",
				logx.String("author", cand.AuthorHandle),
				logx.Int("score", cand.EngagementScore),
				logx.String("reason", r.Reason))
		default:
			texts, err := a.src.PostsForToken(ctx, cand.Token.ContractAddress, a.corpusLimit)
			if err != nil {
				r.Reason = "corpus fetch failed"
				a.log.Warn("corpus fetch failed",
					logx.String("author", cand.AuthorHandle),
					logx.String("contract", cand.Token.ContractAddress),
					logx.Err(err))
				break
			}
			r.Corpus = strings.Join(texts, "\n")
			r.Eligible = true
		}
		out = append(out, r)
	}
	return out, nil
}
