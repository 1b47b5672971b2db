package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"allocation-generator/internal/app"
	"allocation-generator/internal/config"
	"allocation-generator/internal/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	concurrency int
	withHistory bool
	historyDir  string

	cfg    *config.Config
	logger *logrus.Logger

	rootCmd = &cobra.Command{
		Use:   "allocation-generator",
		Short: "Generate Merkle allocation reports for the SyrupDrip contract",
		Long: `allocation-generator turns a list of "address,amount" rows into a
claimable allocation report: every row gets a new id after the contract's
maxId, and the report carries the Merkle root and a proof per allocation.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	// --- Reports ---
	generateCmd = &cobra.Command{
		Use:   "generate [input file]",
		Short: "Generate the allocation report for an input file",
		Long: `Reads "address,amount" rows from the input file and writes the report
next to it, with the same name and a .json extension.`,
		Args: cobra.ExactArgs(1),
		RunE: runGenerate,
	}
	verifyCmd = &cobra.Command{
		Use:   "verify [report file]",
		Short: "Check the root, proofs, maximum id and deadline of a report",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}

	// --- API ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve stored reports and proofs over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default config.local.yaml or config.yaml when present)")

	generateCmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel isClaimed lookups (overrides registry.concurrency)")
	generateCmd.Flags().BoolVar(&withHistory, "history", false, "reject ids already used by previous reports")
	generateCmd.Flags().StringVar(&historyDir, "history-dir", "", "directory of previous reports (default: the input's directory)")

	rootCmd.AddCommand(generateCmd, verifyCmd, serveCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if concurrency > 0 {
		loaded.Registry.Concurrency = concurrency
	}
	if withHistory {
		loaded.History.Enabled = true
	}
	if historyDir != "" {
		loaded.History.Dir = historyDir
	}

	l, err := app.NewLogger(loaded.Log)
	if err != nil {
		return err
	}

	cfg = loaded
	logger = l
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	container := app.NewContainer(cfg, logger)
	defer container.Close()

	svc, err := container.InitAllocationService(ctx)
	if err != nil {
		logger.WithError(err).Error("❌ Failed to initialize")
		return err
	}

	result, err := svc.Generate(ctx, args[0])
	if err != nil {
		logger.WithError(err).Error("❌ Report generation failed")
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Path)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	svc := services.NewAllocationService(cfg, nil, services.WithServiceLogger(logger))

	r, err := svc.Verify(args[0])
	if err != nil {
		logger.WithError(err).Error("❌ Report verification failed")
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d allocations\n", r.Name, r.MerkleRoot, len(r.Allocations))
	return nil
}
