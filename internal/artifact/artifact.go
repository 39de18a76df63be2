// Package artifact writes the end-of-run artefact bundle: report.md
// and metadata.json under artifacts/<run_id>/ (spec.md §4.5).
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/taipm/hdrp-go/internal/synthesiser"
)

const (
	systemName    = "hdrp"
	systemVersion = "1.0.0"
)

// BundleInfo is metadata.json's bundle_info object.
type BundleInfo struct {
	RunID       string `json:"run_id"`
	GeneratedAt string `json:"generated_at"`
	Query       string `json:"query"`
	ReportTitle string `json:"report_title"`
}

// Statistics is metadata.json's statistics object.
type Statistics struct {
	TotalClaims    int `json:"total_claims"`
	VerifiedClaims int `json:"verified_claims"`
	RejectedClaims int `json:"rejected_claims"`
	UniqueSources  int `json:"unique_sources"`
}

// SourceEntry is one element of metadata.json's sources array.
type SourceEntry struct {
	URL    string `json:"url"`
	Title  string `json:"title"`
	Rank   int    `json:"rank"`
	Claims int    `json:"claims"`
}

// Provenance is metadata.json's provenance object.
type Provenance struct {
	System              string   `json:"system"`
	Version             string   `json:"version"`
	Pipeline            []string `json:"pipeline"`
	VerificationEnabled bool     `json:"verification_enabled"`
}

// Metadata is the full metadata.json shape (spec.md §4.5).
type Metadata struct {
	BundleInfo BundleInfo    `json:"bundle_info"`
	Statistics Statistics    `json:"statistics"`
	Sources    []SourceEntry `json:"sources"`
	Provenance Provenance    `json:"provenance"`
}

// Bundle is the full in-memory artefact bundle, ready to be written.
type Bundle struct {
	Report   string
	Metadata Metadata
}

// BuildMetadata assembles a Metadata object from the synthesiser's
// output, mirroring the exact shape original_source's
// pipeline_runner.py's _save_report_artifacts() writes, generalised to
// spec.md's 4-element pipeline array (Planner, Researcher, Critic,
// Synthesiser — spec.md is authoritative over the original's 3-element
// list, which omits Researcher).
func BuildMetadata(runID, query, reportTitle string, totalClaims, verifiedClaims int, sources []synthesiser.Source, verificationEnabled bool, generatedAt time.Time) Metadata {
	entries := make([]SourceEntry, 0, len(sources))
	for _, s := range sources {
		entries = append(entries, SourceEntry{URL: s.URL, Title: s.Title, Rank: s.Rank, Claims: s.Claims})
	}

	return Metadata{
		BundleInfo: BundleInfo{
			RunID:       runID,
			GeneratedAt: generatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Query:       query,
			ReportTitle: reportTitle,
		},
		Statistics: Statistics{
			TotalClaims:    totalClaims,
			VerifiedClaims: verifiedClaims,
			RejectedClaims: totalClaims - verifiedClaims,
			UniqueSources:  len(entries),
		},
		Sources: entries,
		Provenance: Provenance{
			System:              systemName,
			Version:             systemVersion,
			Pipeline:            []string{"Planner", "Researcher", "Critic", "Synthesiser"},
			VerificationEnabled: verificationEnabled,
		},
	}
}

// Write persists report and metadata under artifactsDir/<run_id>/.
// A write failure is returned to the caller but must never fail the
// run itself (spec.md §4.5 combined with the runner's log-only policy
// for artefact-save failures, per original_source's pipeline_runner.py).
func Write(artifactsDir, runID, report string, metadata Metadata) error {
	dir := filepath.Join(artifactsDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: create run dir: %w", err)
	}

	reportPath := filepath.Join(dir, "report.md")
	if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("artifact: write report.md: %w", err)
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal metadata: %w", err)
	}
	metadataPath := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(metadataPath, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write metadata.json: %w", err)
	}

	return nil
}
