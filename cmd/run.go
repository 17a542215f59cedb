package cmd

import (
	"github.com/spf13/cobra"

	"dggscli/internal/pipeline"
	"dggscli/internal/progress"
	"dggscli/pkg/utils"
)

func runPipeline(cmd *cobra.Command, args []string) error {
	const command = "run"

	cfg, log, err := setup(cmd, args[0])
	if err != nil {
		utils.PrintError(err, command)
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithStoreOpener(openStore),
	}
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); noProgress {
		opts = append(opts, pipeline.WithProgress(progress.Nop()))
	}

	report, err := pipeline.New(cfg, opts...).Run(ctx)
	if err != nil {
		log.Errorw("Pipeline failed", "error", err)
		utils.PrintError(err, command)
		return err
	}

	if report.Download != nil {
		if err := utils.PrintJSON(report.Download); err != nil {
			utils.PrintError(err, command)
			return err
		}
	}

	log.Debug("Pipeline completed successfully")
	return nil
}
