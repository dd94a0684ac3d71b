package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/IdrisKulubi/HIH-sub002/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// sweepCmd 单次执行审批截止检查, 便于由 cron 调度
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the due diligence approval deadline sweep once",
	Long: `Reassign every due diligence approval whose validator deadline has passed
to the least-loaded other oversight reviewer, then exit.
When redis is configured the sweep is skipped if another instance holds the lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, log, err := bootstrap(cmd)
		if err != nil {
			return err
		}

		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		result, err := ctr.Scheduler().RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}
		if result == nil {
			log.Info("sweep skipped, another instance holds the lock")
			return nil
		}

		log.WithFields(logrus.Fields{
			"checked":    result.Checked,
			"reassigned": result.Reassigned,
			"skipped":    len(result.Skipped),
		}).Info("sweep completed")

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
