// Package runner wires the pipeline's collaborators, Planner, Executor,
// and artefact writer into the single ExecuteRequest/ExecuteResponse
// entry point both cmd/hdrp-server and cmd/hdrp-cli call into (spec.md
// §6), mirroring original_source's PipelineRunner.execute() control
// flow: validate, plan, execute, save artefacts (log-only on failure).
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/taipm/hdrp-go/internal/artifact"
	"github.com/taipm/hdrp-go/internal/collaborators"
	"github.com/taipm/hdrp-go/internal/config"
	"github.com/taipm/hdrp-go/internal/critic"
	"github.com/taipm/hdrp-go/internal/executor"
	"github.com/taipm/hdrp-go/internal/herrors"
	"github.com/taipm/hdrp-go/internal/hlog"
	"github.com/taipm/hdrp-go/internal/planner"
)

// maxQueryLength is the inclusive bound a trimmed query must satisfy
// (spec.md §3: "≤ 500 characters after trimming").
const maxQueryLength = 500

// ExecuteRequest is the run-submission request (spec.md §6).
type ExecuteRequest struct {
	Query    string
	Provider string
	RunID    string // optional; generated if empty
}

// ExecuteResponse is the run-submission response (spec.md §6).
type ExecuteResponse struct {
	Success      bool
	RunID        string
	Report       string
	ErrorMessage string
}

// Runner owns the configuration and directories every run is executed
// against. One Runner serves arbitrarily many concurrent Execute calls.
type Runner struct {
	cfg          *config.Config
	artifactsDir string
	logsDir      string
}

// New builds a Runner. cfg must already be validated (config.Load does
// this).
func New(cfg *config.Config, artifactsDir, logsDir string) *Runner {
	return &Runner{cfg: cfg, artifactsDir: artifactsDir, logsDir: logsDir}
}

// Execute runs one end-to-end pipeline invocation. It never panics and
// never returns a transport-level error: logical failure is reported
// through ExecuteResponse.Success/ErrorMessage (spec.md §6).
func (r *Runner) Execute(ctx context.Context, req ExecuteRequest) ExecuteResponse {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return failure("", herrors.InvalidArg("query", "query must not be empty"))
	}
	if utf8.RuneCountInString(query) > maxQueryLength {
		return failure("", herrors.InvalidArg("query", fmt.Sprintf("query exceeds %d characters", maxQueryLength)))
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	logger, err := hlog.NewFileLogger(r.logsDir, runID, "runner")
	if err != nil {
		// Logging is ambient infrastructure; its absence must never
		// sink a run, so fall back to a no-op logger.
		logger = nil
	}
	var log hlog.Logger = hlog.NoopLogger{}
	if logger != nil {
		log = logger
		defer logger.Close()
	}
	log.Info(ctx, "query_submitted", hlog.F("query", query), hlog.F("provider", req.Provider))

	search, err := r.buildSearch(req.Provider)
	if err != nil {
		log.Warn(ctx, "invalid_provider", hlog.F("provider", req.Provider), hlog.F("error", err.Error()))
		return failure(runID, err)
	}

	plannerLog := withComponent(log, "planner")
	executorLog := withComponent(log, "executor")
	criticLog := withComponent(log, "critic")

	llm := r.buildLLM()
	limits := collaborators.NewLimiters()
	entailment := collaborators.NewHTTPEntailment(r.cfg.NLIEndpoint)
	cache := r.buildCache(runID, criticLog)

	thresholds := critic.Thresholds{
		TauGround:    r.cfg.VerifierTauGround,
		KappaContra:  r.cfg.VerifierKappaContra,
		TauRelevance: r.cfg.VerifierTauRelevance,
	}
	verifier := critic.New(entailment, limits, cache, thresholds, r.cfg.NLIVariantDefault, criticLog)

	// RunStats (mean/stddev entailment, gonum/stat) is threaded into the
	// run's final log line regardless of how Execute returns (spec.md
	// §4.5, SPEC_FULL §C).
	defer func() {
		stats := verifier.Stats()
		log.Info(ctx, "run_completed", hlog.F("mean_entailment", stats.MeanEntailment), hlog.F("stddev_entailment", stats.StdDevEntailment), hlog.F("sample_count", stats.SampleCount))
	}()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RunDeadline())
	defer cancel()

	pl := planner.New(llm, limits, plannerLog)
	graph := pl.Decompose(runCtx, query, runID)

	deps := executor.Deps{
		Search:     search,
		LLM:        llm,
		Verifier:   verifier,
		Limits:     limits,
		Log:        executorLog,
		WorkerPool: r.cfg.WorkerPoolSize,
	}
	report, err := executor.Execute(runCtx, graph, deps, runID)
	if err != nil {
		// Timeout and cancellation propagate as a single outcome with
		// no partial artefacts written (spec.md §7).
		log.Warn(ctx, "run_failed", hlog.F("error", err.Error()))
		return failure(runID, err)
	}

	r.saveArtifacts(ctx, runID, query, report, log)

	return ExecuteResponse{Success: true, RunID: runID, Report: report.Report}
}

// withComponent scopes log to a component name when the concrete
// logger supports it (*hlog.JSONLLogger); other implementations (e.g.
// hlog.NoopLogger) are returned unchanged since they carry no
// component field to scope.
func withComponent(log hlog.Logger, component string) hlog.Logger {
	if jl, ok := log.(*hlog.JSONLLogger); ok {
		return jl.WithComponent(component)
	}
	return log
}

// buildSearch selects a Search collaborator by provider name, falling
// back to the configured default when provider is empty, mirroring
// original_source's build_search_provider dispatch.
func (r *Runner) buildSearch(provider string) (collaborators.Search, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	if name == "" {
		name = r.cfg.SearchProvider
	}
	switch name {
	case "", "simulated":
		return collaborators.NewSimulatedSearch(), nil
	case "google":
		return collaborators.NewGoogleSearch(r.cfg.SearchAPIKey), nil
	case "tavily":
		return collaborators.NewTavilySearch(r.cfg.SearchAPIKey), nil
	default:
		return nil, herrors.InvalidArg("provider", fmt.Sprintf("unknown provider %q, use google, tavily, or simulated", provider))
	}
}

// buildLLM returns nil (degraded mode) unless an OpenAI API key is
// configured.
func (r *Runner) buildLLM() collaborators.LLM {
	if r.cfg.OpenAIAPIKey == "" {
		return nil
	}
	return collaborators.NewOpenAILLM(r.cfg.OpenAIAPIKey, r.cfg.OpenAIBaseURL, r.cfg.LLMModel)
}

// buildCache selects the entailment cache backend, falling back to the
// in-memory FIFO cache if the Redis backend can't connect (a cache is
// an optimisation, never a hard dependency for a run to proceed).
func (r *Runner) buildCache(runID string, log hlog.Logger) critic.Cache {
	if r.cfg.VerifierCacheBackend == "redis" {
		cache, err := critic.NewRedisEntailmentCache(r.cfg.RedisAddr, runID, 10*time.Minute)
		if err == nil {
			return cache
		}
		log.Warn(context.Background(), "redis_cache_unavailable", hlog.F("error", err.Error()), hlog.F("fallback", "memory"))
	}
	return critic.NewEntailmentCache(r.cfg.VerifierCacheSize)
}

// saveArtifacts writes report.md and metadata.json, logging (but never
// surfacing) a write failure, per original_source's
// _save_report_artifacts try/except and spec.md §4.5.
func (r *Runner) saveArtifacts(ctx context.Context, runID, query string, report *executor.Report, log hlog.Logger) {
	md := artifact.BuildMetadata(
		runID,
		query,
		report.ReportTitle,
		report.TotalClaims,
		report.VerifiedClaims,
		report.Sources,
		true,
		time.Now(),
	)
	if err := artifact.Write(r.artifactsDir, runID, report.Report, md); err != nil {
		log.Warn(ctx, "artifact_save_failed", hlog.F("error", err.Error()))
	}
}

func failure(runID string, err error) ExecuteResponse {
	return ExecuteResponse{Success: false, RunID: runID, ErrorMessage: userMessage(err)}
}

// userMessage renders a generic, non-technical message for the caller;
// details stay in the log only (spec.md §7).
func userMessage(err error) string {
	switch herrors.KindOf(err) {
	case herrors.InvalidArgument:
		return err.Error()
	case herrors.Timeout:
		return "The research run did not complete within its time budget."
	case herrors.ExternalUnavailable:
		return "Search service temporarily unavailable. Please try again."
	default:
		return "An internal error occurred while processing the request."
	}
}
