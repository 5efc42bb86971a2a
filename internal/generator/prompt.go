package generator

import (
	"fmt"
	"strings"
)

// analystFrame is the instructional frame for the web-augmented analysis
// stage: score the token's backing, virality, longevity and originality,
// then recommend.
const analystFrame = `You are a Web3 token analyst. Given the recent INFORMATION related to this token, provide a concise evaluation covering four aspects:

Background (1-10): Who is behind the token? Are there credible backers, well-known founders, or influencers supporting it?

Virality (1-10): How likely is it to go viral? How many retweets and engagements are there? Would public figures potentially notice or amplify it?

Longevity (1-10): Does this token show signs of long-term community interest, or is it a short-term hype event? Religious, cultural, or animal themes may indicate longer relevance.

Originality (1-10): Use web search to determine how unique this idea is. Has anything similar been done before?

Finally, give a Total Score (average of the four) and a brief recommendation on whether this token is worth buying or just hype. Base the scores on the social posts, not the token itself. Include the contract address, token name and chain. No * symbol.`

// compressFrame turns a full analysis into a single post-ready string.
const compressFrame = `Rewrite the following token analysis as one appealing social post. Keep the token name, chain and contract address. Plain text only, no hashtags spam, no * symbol.`

// lengthDirective is appended to every generation request; the builder still
// enforces the limit locally afterwards.
const lengthDirective = "The final text must be under 280 characters."

// BuildAnalysisPrompt assembles the first-stage prompt from the candidate's
// corpus and any extra news context.
func BuildAnalysisPrompt(label, excerpt, corpus, newsContext string) string {
	var b strings.Builder
	b.WriteString(analystFrame)
	b.WriteString("\n\nTOKEN: ")
	b.WriteString(label)
	if excerpt != "" {
		b.WriteString("\n\nSOURCE POST:\n")
		b.WriteString(excerpt)
	}
	if corpus != "" {
		b.WriteString("\n\nINFORMATION:\n")
		b.WriteString(corpus)
	}
	if newsContext != "" {
		b.WriteString("\n\nRECENT NEWS:\n")
		b.WriteString(newsContext)
	}
	b.WriteString("\n\n")
	b.WriteString(lengthDirective)
	return b.String()
}

// BuildCompressPrompt assembles the second-stage prompt.
func BuildCompressPrompt(analysis string) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s", compressFrame, analysis, lengthDirective)
}
