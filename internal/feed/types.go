package feed

// Candidate is one ranked source post eligible for commentary generation.
type Candidate struct {
	AuthorHandle    string
	EngagementScore int
	Excerpt         string
	// Token is nil when the source post carried no token reference.
	Token *TokenRef
}

// TokenRef identifies the token a post talks about.
type TokenRef struct {
	Symbol          string
	Chain           string
	ContractAddress string
}

// HasContract reports whether the candidate carries a usable contract address.
func (c Candidate) HasContract() bool {
	return c.Token != nil && c.Token.ContractAddress != ""
}

// Ranked is a retained candidate plus everything collected for it. The
// candidate's own fields stay reachable directly on Ranked.
type Ranked struct {
	Candidate
	// Corpus is the joined recent texts mentioning the contract address.
	// Empty when the candidate has no contract or its fetch failed.
	Corpus string
	// Eligible marks candidates that may proceed to generation.
	Eligible bool
	// Reason explains why an ineligible candidate was excluded.
	Reason string
}
