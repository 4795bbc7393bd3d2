// Command querybotctl 在命令行中运行结构内省、单次提问、SQL 校验、文档入库与密码哈希生成。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"querybot-go/internal/config"
	"querybot-go/pkg/log"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "querybotctl",
	Short:         "Command line tools for the query engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print service logs")
	rootCmd.AddCommand(schemaCmd, askCmd, guardCmd, ingestCmd, hashPasswordCmd)
}

// loadConfig 读取配置。默认不输出日志，--verbose 时以 console 格式输出。
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if verbose {
		log.Init(cfg.Log.Level, "console", "")
	}
	return *cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
