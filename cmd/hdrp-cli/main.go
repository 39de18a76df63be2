// Command hdrp-cli runs a single research query from the terminal
// (spec.md §6: --query, --provider, --output, --verbose).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/taipm/hdrp-go/internal/config"
	"github.com/taipm/hdrp-go/internal/runner"
)

func main() {
	query := flag.String("query", "", "research query to execute")
	provider := flag.String("provider", "", "search provider: simulated, google, tavily (default: configured default)")
	output := flag.String("output", "", "optional path to write the report to, in addition to stdout")
	verbose := flag.Bool("verbose", false, "print progress to stderr")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("HDRP_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hdrp: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "[hdrp] provider=%s query=%q\n", *provider, *query)
	}

	r := runner.New(cfg, "artifacts", "logs")
	resp := r.Execute(context.Background(), runner.ExecuteRequest{Query: *query, Provider: *provider})

	if *verbose {
		fmt.Fprintf(os.Stderr, "[hdrp] run_id=%s success=%v\n", resp.RunID, resp.Success)
	}

	if !resp.Success {
		fmt.Fprintf(os.Stderr, "hdrp: %s\n", resp.ErrorMessage)
		os.Exit(1)
	}

	fmt.Println(resp.Report)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(resp.Report), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "hdrp: failed to write report to %s: %v\n", *output, err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "[hdrp] report written to %s\n", *output)
		}
	}

	os.Exit(0)
}
