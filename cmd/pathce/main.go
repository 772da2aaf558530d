package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/P40-traveler/pathce/pkg/config"
	"github.com/P40-traveler/pathce/pkg/estimate"
	"github.com/P40-traveler/pathce/pkg/parser"
	"github.com/P40-traveler/pathce/pkg/summary"
	"github.com/P40-traveler/pathce/pkg/validation"
	"github.com/P40-traveler/pathce/server"
)

var (
	configFile string

	vertexFile   string
	edgeFile     string
	summaryFile  string
	schemeFlag   string
	maxCycleSize int

	patternFile    string
	timeoutSeconds float64
	sampling       string
	partialSums    bool

	listenAddr string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pathce",
		Short: "Graph summary construction and subgraph cardinality estimation",
		Long: "pathce builds compact color-based summaries of labeled graphs and " +
			"computes upper-bound cardinality estimates for subgraph patterns against them.",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file (optional)")

	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a summary from vertex and edge files",
		Run:   runBuild,
	}
	buildCmd.Flags().StringVar(&vertexFile, "vertices", "", "vertex file: one 'id label' per line")
	buildCmd.Flags().StringVar(&edgeFile, "edges", "", "edge file: one 'src dst type' per line")
	buildCmd.Flags().StringVar(&summaryFile, "output", "summary.gsum", "output summary file")
	buildCmd.Flags().StringVar(&schemeFlag, "scheme", "", "partition scheme, e.g. label:8,degree:4,quasistable:16")
	buildCmd.Flags().IntVar(&maxCycleSize, "max-cycle-size", 0, "largest cycle length tracked by membership filters")
	buildCmd.MarkFlagRequired("vertices")
	buildCmd.MarkFlagRequired("edges")

	estimateCmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate a pattern's cardinality against a summary",
		Run:   runEstimate,
	}
	estimateCmd.Flags().StringVar(&summaryFile, "summary", "", "summary file built by 'pathce build'")
	estimateCmd.Flags().StringVar(&patternFile, "pattern", "", "pattern file (JSON)")
	estimateCmd.Flags().Float64Var(&timeoutSeconds, "timeout", 0, "soft deadline in seconds (0 disables)")
	estimateCmd.Flags().StringVar(&sampling, "sampling", "", "fallback sampling strategy: none or random")
	estimateCmd.Flags().BoolVar(&partialSums, "partial-sums", false, "aggregate join candidates by sum instead of max")
	estimateCmd.MarkFlagRequired("summary")
	estimateCmd.MarkFlagRequired("pattern")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Inspect a summary file",
		Run:   runShow,
	}
	showCmd.Flags().StringVar(&summaryFile, "summary", "", "summary file")
	showCmd.MarkFlagRequired("summary")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP estimation service",
		Run:   runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address")

	rootCmd.AddCommand(buildCmd, estimateCmd, showCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg := config.New()
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configFile, err)
			os.Exit(1)
		}
	}
	return cfg
}

func runBuild(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if schemeFlag != "" {
		cfg.Set("build.scheme", schemeFlag)
	}
	if maxCycleSize > 0 {
		cfg.Set("build.max_cycle_size", maxCycleSize)
	}
	logger := cfg.CreateLogger()

	g, err := parser.LoadGraph(vertexFile, edgeFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load graph")
	}
	logger.Info().Int("vertices", g.NumVertices).Int("edges", g.NumEdges).Msg("Graph loaded")

	params, err := cfg.BuildParams()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid build parameters")
	}
	sum, err := summary.Build(g, params, cfg.NumWorkers(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Summary build failed")
	}
	if err := summary.Save(sum, summaryFile); err != nil {
		logger.Fatal().Err(err).Msg("Failed to save summary")
	}
	logger.Info().Str("path", summaryFile).Msg("Summary saved")
}

func runEstimate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if timeoutSeconds > 0 {
		cfg.Set("estimate.timeout_seconds", timeoutSeconds)
	}
	if sampling != "" {
		cfg.Set("estimate.sampling_strategy", sampling)
	}
	if partialSums {
		cfg.Set("estimate.use_partial_sums", true)
	}
	logger := cfg.CreateLogger()

	sum, err := summary.Load(summaryFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load summary")
	}
	pattern, err := parser.LoadPattern(patternFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load pattern")
	}
	if err := validation.ValidatePattern(pattern, sum); err != nil {
		logger.Fatal().Err(err).Msg("Pattern validation failed")
	}

	bound, err := estimate.Estimate(pattern, sum, cfg.EstimateConfig(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Estimation failed")
	}

	fmt.Printf("bound: %g\n", bound.Bound)
	fmt.Printf("latency: %s\n", bound.Latency)
	if pattern.ExpectedCount != nil {
		fmt.Printf("expected: %g\n", *pattern.ExpectedCount)
		fmt.Printf("q-error: %g\n", estimate.QError(bound.Bound, *pattern.ExpectedCount))
	}
}

func runShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := cfg.CreateLogger()

	sum, err := summary.Load(summaryFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load summary")
	}
	fmt.Print(sum.Describe())
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	logger := cfg.CreateLogger()

	srv := server.New(cfg)
	if err := srv.ListenAndServe(listenAddr); err != nil {
		logger.Fatal().Err(err).Msg("Server exited")
	}
}
