package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dggscli/internal/downloader"
	"dggscli/internal/models"
	"dggscli/pkg/utils"
)

var planCmd = &cobra.Command{
	Use:   "plan <config.toml>",
	Short: "List the keys a run would download",
	Long: `Resolve every requested object of the settings file to object keys without
downloading anything. Prefix entries (is_dir = true) are listed against the store,
so the endpoint and credentials are checked as well.`,
	Example: `  # Print the resolved keys as JSON
  dggscli plan config.toml

  # With debug logging
  dggscli plan config.toml --verbose`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	const command = "plan"

	cfg, log, err := setup(cmd, args[0])
	if err != nil {
		utils.PrintError(err, command)
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	dd := cfg.DownloadData
	store, err := openStore(ctx, dd)
	if err != nil {
		utils.PrintError(err, command)
		return err
	}
	d := downloader.New(store, dd.OutputFolder, downloader.WithLogger(log))

	plan := &models.PlanResult{
		BucketName:   dd.BucketName,
		Endpoint:     dd.Endpoint,
		OutputFolder: d.Root(),
		Entries:      []models.PlanEntry{},
	}
	for _, obj := range dd.Objects {
		log.Debugw("Resolving object", "object", obj.String())

		keys, err := d.Resolve(ctx, obj)
		if err != nil {
			err = fmt.Errorf("failed to resolve %s: %w", obj, err)
			utils.PrintError(err, command)
			return err
		}
		for _, key := range keys {
			if _, err := d.LocalPath(key); err != nil {
				utils.PrintError(err, command)
				return err
			}
		}

		plan.Entries = append(plan.Entries, models.PlanEntry{Path: obj.Path, IsDir: obj.IsDir, Keys: keys})
		plan.TotalKeys += len(keys)
	}

	if err := utils.PrintJSON(plan); err != nil {
		utils.PrintError(err, command)
		return err
	}
	return nil
}
