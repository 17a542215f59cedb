package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dggscli/config"
	"dggscli/internal/logger"
	"dggscli/internal/objstore"
	"dggscli/internal/pipeline"
)

// openStore is replaced in tests.
var openStore pipeline.StoreOpener = objstore.New

var rootCmd = &cobra.Command{
	Use:   "dggscli <config.toml>",
	Short: "EOPF-DGGS data processing pipeline",
	Long: `dggscli runs the EOPF-DGGS data processing pipeline described by a TOML
settings file.

With [operations] download_data enabled, every entry of [download_data] objects is
fetched from the S3-compatible endpoint into <output_folder>/<bucket_name>/<key>.
Entries with is_dir = true are treated as key prefixes and every key under them is
downloaded.

Settings can be overridden with DGGS_<SECTION>_<KEY> environment variables; the
credentials are also read from MINIO_ACCESS_KEY_ID and MINIO_SECRET_ACCESS_KEY, or
from a .env file in the working directory.`,
	Example: `  # Run the pipeline
  dggscli config.toml

  # Debug logging, no progress bars, give up after ten minutes
  dggscli config.toml --verbose --no-progress --timeout 600

  # Show what would be downloaded
  dggscli plan config.toml`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPipeline,
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(showConfigCmd)

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Int("timeout", 0, "Timeout in seconds for the operation (0 disables it)")
	rootCmd.Flags().Bool("no-progress", false, "Disable progress bars")
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

// setup loads the settings file and builds the logger it describes.
func setup(cmd *cobra.Command, path string) (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	logCfg := cfg.Log
	if isVerbose(cmd) {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	zap.ReplaceGlobals(log.Desugar())

	return cfg, log, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetInt("timeout")
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
}
