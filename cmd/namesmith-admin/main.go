// Package main 运维命令行（namesmith-admin）
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/pkg/logger"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func newRootCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:          "namesmith-admin",
		Short:        "Namesmith operations toolkit",
		Long:         "Schema migration, model catalog inspection, cost quotes and cache maintenance for namesmith.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir, "directory containing config.yaml")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadFrom(configDir)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
		return cfg, nil
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newModelsCmd(load))
	cmd.AddCommand(newQuoteCmd(load))
	cmd.AddCommand(newBudgetCmd(load))
	cmd.AddCommand(newMemoCmd(load))
	return cmd
}

// configLoader 延迟加载配置，--config-dir 在命令执行时才解析
type configLoader func() (*config.Config, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "namesmith-admin %s (built: %s)\n", Version, BuildTime)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	_ = godotenv.Load()
	os.Exit(execute(newRootCmd()))
}
