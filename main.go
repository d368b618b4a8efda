// dyadchat 一对一实时聊天 broker。
//
//	dyadchat serve            启动 WebSocket broker
//	dyadchat migrate          建表（Postgres）
//	dyadchat events           订阅 NATS 生命周期事件
//	dyadchat token <userId>   签发 JWT（AUTH_MODE=jwt）
//
// 配置全部来自 DYAD_ 前缀的环境变量，可选 .env。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dyadchat/global/config"
)

var (
	version = "dev"
	envFile string
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dyadchat",
		Short:        "Dyadic real-time chat broker",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default: ./.env if present)")

	root.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildEventsCmd(),
		buildTokenCmd(),
	)
	return root
}

func loadConfig() (config.Config, error) {
	if envFile != "" {
		return config.Load(envFile)
	}
	return config.Load()
}
