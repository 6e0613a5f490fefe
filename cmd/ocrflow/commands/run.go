package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/Lllllllleong/ocrflow/cmd/ocrflow/ui"
	"github.com/Lllllllleong/ocrflow/internal/config"
	"github.com/Lllllllleong/ocrflow/internal/gcp"
	"github.com/Lllllllleong/ocrflow/internal/providers"
	"github.com/Lllllllleong/ocrflow/internal/services"
	"github.com/spf13/cobra"
)

var (
	runOutDir      string
	runProvider    string
	runThresholdMB float64
	runPrefix      string
	runTrack       bool
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Recognize PDFs and images and write Markdown results",
	Long: "Recognize each file in turn, stopping at the first failure.\n\nSupported file types: " +
		strings.Join(services.SupportedExtensions(), " "),
	Args: cobra.MinimumNArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "output directory (default: current directory)")
	runCmd.Flags().StringVarP(&runProvider, "provider", "p", "", "OCR provider id (see 'ocrflow providers')")
	runCmd.Flags().Float64Var(&runThresholdMB, "threshold-mb", 0, "chunk documents larger than this many MB")
	runCmd.Flags().StringVar(&runPrefix, "prefix", "", "prefix of each document's output directory")
	runCmd.Flags().BoolVar(&runTrack, "track", false, "record job status in Firestore")
	rootCmd.AddCommand(runCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.OutputDir = runOutDir
	}
	if flags.Changed("provider") {
		cfg.Provider = runProvider
	}
	if flags.Changed("threshold-mb") {
		cfg.ChunkThresholdMB = runThresholdMB
	}
	if flags.Changed("prefix") {
		cfg.DirPrefix = runPrefix
	}
	return cfg, cfg.Validate()
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		ui.Error("%v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Resolve before touching any input so a bad provider fails fast.
	provider, err := providers.DefaultRegistry().Resolve(ctx, cfg.Provider, cfg.ProviderOptions())
	if err != nil {
		ui.Error("%v", err)
		return err
	}
	defer func() {
		if err := providers.Close(provider); err != nil {
			slog.Warn("Failed to close provider.", "error", err)
		}
	}()

	opts, closeTracker, err := trackerOptions(ctx, cfg, provider.ID())
	if err != nil {
		ui.Error("%v", err)
		return err
	}
	defer closeTracker()

	pipeline := services.NewPipeline(services.PipelineConfig{
		OutputDir:      cfg.OutputDir,
		DirPrefix:      cfg.DirPrefix,
		ChunkThreshold: cfg.ChunkThresholdBytes(),
	}, provider, opts...)

	ui.Info("Using %s, writing to %s", provider.Name(), cfg.OutputDir)
	bar := ui.NewProgressBar(os.Stderr)
	for ev := range pipeline.Run(ctx, args) {
		switch ev.Type {
		case services.EventOverall:
			bar.SetOverall(ev.Fraction)
		case services.EventChunk:
			bar.SetChunk(ev.Fraction)
		case services.EventStatus:
			bar.SetStatus(ev.Message)
		case services.EventFinished:
			bar.Finish()
			ui.Success("%s", ev.Message)
			for _, out := range ev.Outputs {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", out)
			}
			return nil
		case services.EventFailed:
			bar.Clear()
			ui.Error("%s", ev.Message)
			return ev.Err
		}
	}
	return ctx.Err()
}

// trackerOptions connects to Firestore when --track is set.
func trackerOptions(ctx context.Context, cfg *config.Config, providerID string) ([]services.Option, func(), error) {
	if !runTrack {
		return nil, func() {}, nil
	}
	client, err := gcp.NewFirestoreClient(ctx, cfg.GCP.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	tracker := gcp.NewFirestoreTracker(client, cfg.GCP.Collection, providerID)
	return []services.Option{services.WithTracker(tracker)}, func() { _ = client.Close() }, nil
}
