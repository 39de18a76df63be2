// Package synthesiser assembles verified claims into a cited Markdown
// report (spec.md §4.4).
package synthesiser

import (
	"fmt"
	"strings"

	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

// Context carries the information the report needs beyond the claims
// themselves: the title line and an introduction paragraph. Built by
// the executor's synthesiser dispatch (spec.md §4.2: report_title =
// "HDRP Research Report: <query>").
type Context struct {
	ReportTitle  string
	Introduction string
}

// NoResultsParagraph is the fixed explanatory text emitted when zero
// claims are accepted (spec.md §4.4 point 5; matches the S4 end-to-end
// scenario's expected report body verbatim).
const NoResultsParagraph = "No information found for this query."

// Source is one bibliography entry: a distinct cited URL together with
// the citation number assigned to it and how many accepted claims cite it.
type Source struct {
	Number int
	URL    string
	Title  string
	Rank   int
	Claims int
}

// Synthesise builds the Markdown report body from results, in the
// teacher's "build up a strings.Builder, then return String()" idiom.
// Only claims with IsValid == true are cited; order of input is
// preserved for citation-number assignment (spec.md §4.4 point 3).
func Synthesise(results []hdrptypes.CritiqueResult, ctx Context) (string, []Source) {
	var accepted []hdrptypes.CritiqueResult
	for _, r := range results {
		if r.IsValid {
			accepted = append(accepted, r)
		}
	}

	numbers := make(map[string]int, len(accepted))
	var sources []Source
	for _, r := range accepted {
		url := r.Claim.SourceURL
		if _, ok := numbers[url]; ok {
			continue
		}
		n := len(sources) + 1
		numbers[url] = n
		sources = append(sources, Source{
			Number: n,
			URL:    url,
			Title:  r.Claim.SourceTitle,
			Rank:   r.Claim.SourceRank,
		})
	}
	for i := range sources {
		for _, r := range accepted {
			if r.Claim.SourceURL == sources[i].URL {
				sources[i].Claims++
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", ctx.ReportTitle)
	if ctx.Introduction != "" {
		fmt.Fprintf(&b, "%s\n\n", ctx.Introduction)
	}

	if len(accepted) == 0 {
		b.WriteString(NoResultsParagraph)
		b.WriteString("\n\n")
	} else {
		for _, r := range accepted {
			n := numbers[r.Claim.SourceURL]
			fmt.Fprintf(&b, "- %s [%d]\n", r.Claim.Statement, n)
		}
		b.WriteString("\n")
	}

	if len(sources) > 0 {
		b.WriteString("## Bibliography\n\n")
		for _, s := range sources {
			label := s.Title
			if label == "" {
				label = s.URL
			}
			fmt.Fprintf(&b, "[%d] %s — %s\n", s.Number, label, s.URL)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n", sources
}
