package synthesiser

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taipm/hdrp-go/internal/hdrptypes"
)

func accepted(statement, url, title string) hdrptypes.CritiqueResult {
	return hdrptypes.CritiqueResult{
		Claim:   hdrptypes.AtomicClaim{Statement: statement, SourceURL: url, SourceTitle: title},
		IsValid: true,
	}
}

func rejected(statement, url string) hdrptypes.CritiqueResult {
	return hdrptypes.CritiqueResult{
		Claim:   hdrptypes.AtomicClaim{Statement: statement, SourceURL: url},
		IsValid: false,
	}
}

func TestSynthesiseSingleAcceptedClaim(t *testing.T) {
	results := []hdrptypes.CritiqueResult{
		accepted("Paris is the capital of France.", "https://example.com/paris", "Paris - Wikipedia"),
	}
	report, sources := Synthesise(results, Context{ReportTitle: "HDRP Research Report: capital of France", Introduction: "This report answers the query."})

	assert.True(t, strings.HasPrefix(report, "# HDRP Research Report: capital of France\n"))
	assert.Contains(t, report, "Paris")
	assert.Contains(t, report, "[1]")
	assert.Contains(t, report, "## Bibliography")
	assert.Contains(t, report, "[1] Paris - Wikipedia — https://example.com/paris")
	require.Len(t, sources, 1)
	assert.Equal(t, 1, sources[0].Number)
}

func TestSynthesiseNoAcceptedClaimsEmitsNoResultsParagraph(t *testing.T) {
	results := []hdrptypes.CritiqueResult{
		rejected("irrelevant", "https://example.com/a"),
	}
	report, sources := Synthesise(results, Context{ReportTitle: "HDRP Research Report: X"})

	assert.Contains(t, report, NoResultsParagraph)
	assert.Empty(t, sources)
	assert.NotContains(t, report, "## Bibliography")
}

func TestSynthesiseEmptyResultsEmitsNoResultsParagraph(t *testing.T) {
	report, sources := Synthesise(nil, Context{ReportTitle: "HDRP Research Report: X"})
	assert.Contains(t, report, NoResultsParagraph)
	assert.Empty(t, sources)
}

func TestSynthesiseCitationNumbersByFirstOccurrence(t *testing.T) {
	results := []hdrptypes.CritiqueResult{
		accepted("claim about B", "https://b.example.com", "B"),
		accepted("another claim about B", "https://b.example.com", "B"),
		accepted("claim about A", "https://a.example.com", "A"),
	}
	report, sources := Synthesise(results, Context{ReportTitle: "T"})

	require.Len(t, sources, 2)
	assert.Equal(t, "https://b.example.com", sources[0].URL)
	assert.Equal(t, 1, sources[0].Number)
	assert.Equal(t, 2, sources[0].Claims) // two claims cite b.example.com
	assert.Equal(t, "https://a.example.com", sources[1].URL)
	assert.Equal(t, 2, sources[1].Number)

	assert.Contains(t, report, "claim about B [1]")
	assert.Contains(t, report, "another claim about B [1]")
	assert.Contains(t, report, "claim about A [2]")
}

func TestSynthesiseIgnoresRejectedClaims(t *testing.T) {
	results := []hdrptypes.CritiqueResult{
		accepted("good claim", "https://good.example.com", "Good"),
		rejected("bad claim", "https://bad.example.com"),
	}
	report, sources := Synthesise(results, Context{ReportTitle: "T"})

	require.Len(t, sources, 1)
	assert.NotContains(t, report, "bad claim")
	assert.NotContains(t, report, "bad.example.com")
	assert.Contains(t, report, "good claim")
}

func TestSynthesiseCitationMarkersMatchBibliographyDense(t *testing.T) {
	results := []hdrptypes.CritiqueResult{
		accepted("claim 1", "https://one.example.com", ""),
		accepted("claim 2", "https://two.example.com", ""),
		accepted("claim 3", "https://three.example.com", ""),
	}
	report, sources := Synthesise(results, Context{ReportTitle: "T"})

	markerRe := regexp.MustCompile(`\[(\d+)\]`)
	markers := make(map[string]bool)
	for _, m := range markerRe.FindAllStringSubmatch(report, -1) {
		markers[m[1]] = true
	}

	// Dense 1..N: exactly len(sources) distinct markers, numbered 1..N.
	assert.Len(t, markers, len(sources))
	for i := 1; i <= len(sources); i++ {
		assert.True(t, markers[fmt.Sprintf("%d", i)], "marker [%d] present", i)
	}
}

func TestSynthesiseUsesURLWhenTitleMissing(t *testing.T) {
	results := []hdrptypes.CritiqueResult{
		accepted("claim", "https://notitle.example.com", ""),
	}
	report, _ := Synthesise(results, Context{ReportTitle: "T"})
	assert.Contains(t, report, "[1] https://notitle.example.com — https://notitle.example.com")
}

func TestSynthesiseBlankIntroductionOmitted(t *testing.T) {
	results := []hdrptypes.CritiqueResult{accepted("claim", "https://x.example.com", "X")}
	report, _ := Synthesise(results, Context{ReportTitle: "T", Introduction: ""})
	assert.False(t, strings.Contains(report, "\n\n\n"))
}
