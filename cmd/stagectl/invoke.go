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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"stagewrap/internal/transport"
)

func stageURL() string {
	if u := os.Getenv("STAGE_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func newClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
}

func invokeCmd() *cobra.Command {
	var (
		baseURL string
		event   bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invoke [payload-json]",
		Short: "通过宿主 HTTP 入口调用 stage（payload 缺省时从 stdin 读取）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return invoke(newClient(baseURL, timeout), payload, event, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", stageURL(), "stage 宿主地址（默认 $STAGE_URL）")
	cmd.Flags().BoolVar(&event, "event", false, "异步调用（X-Invocation-Type: Event）")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "请求超时")
	return cmd
}

func readPayload(args []string, stdin io.Reader) ([]byte, error) {
	var raw []byte
	if len(args) > 0 {
		raw = []byte(args[0])
	} else {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("读取 stdin: %w", err)
		}
		raw = b
	}
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload 不是合法 JSON")
	}
	return raw, nil
}

func invoke(client *resty.Client, payload []byte, event bool, out io.Writer) error {
	invocationType := transport.InvocationTypeRequestResponse
	if event {
		invocationType = transport.InvocationTypeEvent
	}
	req := client.R().SetHeader(transport.InvocationTypeHeader, invocationType)
	if payload != nil {
		req.SetBody(payload)
	}
	resp, err := req.Post("/invoke")
	if err != nil {
		return err
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusAccepted:
		fmt.Fprintln(out, resp.String())
		return nil
	default:
		return fmt.Errorf("POST /invoke: %d %s", resp.StatusCode(), resp.String())
	}
}
