package cmd

import (
	"fmt"

	"github.com/IdrisKulubi/HIH-sub002/internal/database"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateStatusOnly bool

// migrateCmd 创建或更新评审库表结构
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the review database schema",
	Long: `Create or update the tables behind applications, reviewer queues, eligibility
results, due diligence records, state history, audit logs and workflow events,
together with the indexes used by the review queues.

With --status the schema is only inspected and each table is reported as present or missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, log, err := bootstrap(cmd)
		if err != nil {
			return err
		}

		log.WithField("driver", cfg.Database.Driver).Info("connecting to database")
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		defer database.Close(db)

		if migrateStatusOnly {
			missing := printSchemaStatus(cmd, db)
			log.WithField("missing", missing).Info("schema inspected")
			return nil
		}

		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database migrations completed")
		return nil
	},
}

// printSchemaStatus 输出每张表是否存在, 返回缺失数量
func printSchemaStatus(cmd *cobra.Command, db *gorm.DB) int {
	missing := 0
	migrator := db.Migrator()
	for _, m := range model.All() {
		stmt := &gorm.Statement{DB: db}
		table := "?"
		if err := stmt.Parse(m); err == nil {
			table = stmt.Schema.Table
		}
		state := "present"
		if !migrator.HasTable(m) {
			state = "missing"
			missing++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s\n", table, state)
	}
	return missing
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "only report which tables exist")
	rootCmd.AddCommand(migrateCmd)
}
