// Command hdrp-server exposes the research pipeline over HTTP: a
// single POST /execute endpoint (spec.md §6).
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/taipm/hdrp-go/internal/config"
	"github.com/taipm/hdrp-go/internal/runner"
)

type executeRequestBody struct {
	Query    string `json:"query"`
	Provider string `json:"provider"`
	RunID    string `json:"run_id"`
}

type executeResponseBody struct {
	Success      bool   `json:"success"`
	RunID        string `json:"run_id"`
	Report       string `json:"report"`
	ErrorMessage string `json:"error_message"`
}

func main() {
	cfg, err := config.Load(os.Getenv("HDRP_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("hdrp-server: %v", err)
	}

	r := runner.New(cfg, "artifacts", "logs")

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", handleExecute(r))

	addr := os.Getenv("HDRP_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunDeadline() + 30*time.Second,
	}

	log.Printf("hdrp-server: listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("hdrp-server: %v", err)
	}
}

// handleExecute decodes an ExecuteRequest, runs the pipeline, and
// always answers 200 with success/error_message in the body — only
// transport-level failures (bad method, malformed JSON) use 4xx
// (spec.md §6: "status 200 even for logical failures").
func handleExecute(r *runner.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var body executeRequestBody
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		resp := r.Execute(req.Context(), runner.ExecuteRequest{
			Query:    body.Query,
			Provider: body.Provider,
			RunID:    body.RunID,
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(executeResponseBody{
			Success:      resp.Success,
			RunID:        resp.RunID,
			Report:       resp.Report,
			ErrorMessage: resp.ErrorMessage,
		})
	}
}
