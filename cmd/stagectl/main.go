// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stagewrap/pkg/config"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "stagectl",
		Short:         "stagectl 管理与调试 pipeline stage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "stage 配置文件（默认 $STAGE_CONFIG 或 configs/stage.yaml）")

	load := func() (*config.Config, error) {
		return config.LoadConfig(configPath)
	}
	root.AddCommand(versionCmd())
	root.AddCommand(invokeCmd())
	root.AddCommand(sendCmd(load))
	root.AddCommand(stagesCmd(load))
	root.AddCommand(resourcesCmd(load))
	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("STAGE_CONFIG"); p != "" {
		return p
	}
	return config.DefaultConfigPath
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stagectl %s\n", version)
		},
	}
}
