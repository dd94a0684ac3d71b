package cmd

import (
	"fmt"
	"os"

	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bire-review",
	Short: "BIRE Programme application review service",
	Long: `bire-review runs the grant application review workflow of the BIRE Programme:
the application state machine, reviewer assignment, two-tier scoring and
due diligence with its approval deadline sweep.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search in ., ./config and $HOME/.bire-review)")
}

// GetRootCmd 返回根命令(用于测试)
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// bootstrap 加载配置并初始化进程级日志
func bootstrap(cmd *cobra.Command) (*config.Config, string, *logrus.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Set(log)
	return cfg, configPath, log, nil
}
