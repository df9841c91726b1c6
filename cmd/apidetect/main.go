package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/robbiethompson18/api-detection-engine/internal/minimize"
	"github.com/robbiethompson18/api-detection-engine/pkg/pipeline"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool

	// Analyze flags
	method      string
	cookies     string
	outputDir   string
	batchSize   int
	settleDelay int

	// Judgment service flags
	judgeEndpoint string
	judgeModel    string
	judgeAPIKey   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "apidetect",
		Short: "apidetect - API detection engine",
		Long: `apidetect discovers which network requests made by a web page carry
valuable data and determines the minimal header set needed to reproduce
each such request outside a browser.`,
		Version: version,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [target]",
		Short: "Analyze a target URL",
		Long: `Load the target page in a headless browser, score the captured API
endpoints via the judgment service, and minimize each valuable request's
headers by replay.`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	analyzeCmd.Flags().StringVarP(&method, "method", "m", "GET", "HTTP method to filter")
	analyzeCmd.Flags().StringVar(&cookies, "cookies", "", "Cookie string (name=value; name=value)")
	analyzeCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for per-stage JSON artifacts")
	analyzeCmd.Flags().IntVarP(&batchSize, "batch-size", "b", 5, "Endpoints per judgment call")
	analyzeCmd.Flags().IntVar(&settleDelay, "settle-delay", 5, "Seconds to wait after page load")
	analyzeCmd.Flags().StringVar(&judgeEndpoint, "judge-endpoint", "", "Judgment service base URL")
	analyzeCmd.Flags().StringVar(&judgeModel, "judge-model", "", "Judgment service model")
	analyzeCmd.Flags().StringVar(&judgeAPIKey, "judge-api-key", "", "Judgment service API key (or JUDGE_API_KEY env)")

	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	config := pipeline.DefaultConfig()
	if configFile != "" {
		loaded, err := pipeline.LoadFromFile(configFile)
		if err != nil {
			return err
		}
		config = loaded
	}
	config.Verbose = verbose

	opts := []pipeline.Option{
		pipeline.WithTarget(args[0]),
		pipeline.WithMethod(method),
		pipeline.WithCookies(cookies),
		pipeline.WithOutputDir(outputDir),
		pipeline.WithBatchSize(batchSize),
		pipeline.WithJudgeService(judgeEndpoint, judgeModel, judgeAPIKey),
	}
	if cmd.Flags().Changed("settle-delay") {
		opts = append(opts, pipeline.WithSettleDelay(time.Duration(settleDelay)*time.Second))
	}

	p, err := pipeline.New(config, opts...)
	if err != nil {
		return err
	}

	// Setup signal handling: cancellation is all-or-nothing.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, aborting...\n")
		cancel()
	}()

	result := p.Run(ctx)
	printSummary(result)

	if !result.Success {
		if result.Err != nil {
			return result.Err
		}
		return fmt.Errorf("pipeline failed")
	}
	return nil
}

func printSummary(result *pipeline.RunResult) {
	fmt.Printf("\n=== Pipeline Summary ===\n")
	for _, sr := range result.Stages {
		status := "ok"
		if !sr.Success {
			status = "FAILED: " + sr.Error
		}
		fmt.Printf("  %-10s %-12s %s\n", sr.Stage, sr.Duration.Round(time.Millisecond), status)
	}
	fmt.Printf("Duration: %s\n", result.Duration.Round(time.Millisecond))

	if !result.Success {
		return
	}

	// Highest-value endpoints first.
	results := append([]minimize.MinimizedHeaderSet(nil), result.Results...)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].UsefulnessScore > results[j].UsefulnessScore
	})

	fmt.Printf("\n=== Detected Endpoints (%d) ===\n", len(results))
	for _, r := range results {
		fmt.Printf("\n[%3d] %s %s\n", r.UsefulnessScore, r.Method, r.URL)
		if r.Justification != "" {
			fmt.Printf("      %s\n", r.Justification)
		}
		fmt.Printf("      headers: %d required of %d observed\n",
			len(r.MinimizedHeaders), len(r.OriginalHeaders))
	}
}
