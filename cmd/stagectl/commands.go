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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stagewrap/internal/app"
	"stagewrap/internal/stage"
	"stagewrap/internal/wrapper"
	"stagewrap/pkg/config"
)

type configLoader func() (*config.Config, error)

func withBootstrap(ctx context.Context, load configLoader, fn func(b *app.Bootstrap) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	// 命令行输出不混入日志
	cfg.Log.Level = "error"
	b, err := app.NewBootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func sendCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:     "send <stage> <payload-json>",
		Aliases: []string{"enqueue"},
		Short:   "按 stage 的触发方式投递一条数据（入队或直接调用）",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
				return fmt.Errorf("payload 不是合法 JSON: %w", err)
			}
			return withBootstrap(cmd.Context(), load, func(b *app.Bootstrap) error {
				return send(cmd.Context(), b, args[0], data, cmd.OutOrStdout())
			})
		},
	}
}

func send(ctx context.Context, b *app.Bootstrap, name string, data any, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	resources, err := b.Resources.Get(ctx)
	if err != nil {
		return err
	}
	router := wrapper.NewRouter(b.Transport, b.Registry, b.Logger, 0)
	if err := router.DeliverTo(ctx, data, name, resources); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent to %s\n", name)
	return nil
}

func stagesCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "列出注册表中的 stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBootstrap(cmd.Context(), load, func(b *app.Bootstrap) error {
				printStages(b.Registry, cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func printStages(reg *stage.Registry, out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRIGGER\tROUTING")
	for _, name := range reg.Names() {
		st, _ := reg.Get(name)
		fmt.Fprintf(w, "%s\t%s\t%s\n", st.Name, st.Trigger, stage.Describe(st.Routing))
	}
	_ = w.Flush()
}

func resourcesCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "加载并显示 resource map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBootstrap(cmd.Context(), load, func(b *app.Bootstrap) error {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				m, err := b.Resources.Get(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STAGE\tQUEUE\tINVOCATION")
				names := make([]string, 0, len(m))
				for n := range m {
					names = append(names, n)
				}
				sort.Strings(names)
				for _, n := range names {
					fmt.Fprintf(w, "%s\t%s\t%s\n", n, dash(m[n].Queue), dash(m[n].Invocation))
				}
				return w.Flush()
			})
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
