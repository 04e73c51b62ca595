package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"backtrack/pkg/api"
	"backtrack/pkg/domain"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	rawJSON bool
	unpin   bool
)

// logCmd 打印当前日志
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the current request log, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		body, err := send(cmd, api.GetLog{})
		if err != nil {
			return err
		}
		if rawJSON {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		var resp api.LogResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return printLog(cmd.OutOrStdout(), resp.Log, time.Now())
	},
}

// clearCmd 清空日志
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the request log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return sendResult(cmd, api.ClearLog{})
	},
}

// trackingCmd 查询或设置采集开关
var trackingCmd = &cobra.Command{
	Use:       "tracking [on|off]",
	Short:     "Show or change whether requests are recorded",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			body, err := send(cmd, api.GetTrackingState{})
			if err != nil {
				return err
			}
			state := "off"
			if gjson.GetBytes(body, "enabled").Bool() {
				state = "on"
			}
			fmt.Fprintln(cmd.OutOrStdout(), state)
			return nil
		}
		switch args[0] {
		case "on":
			return sendResult(cmd, api.SetTrackingState{Enabled: true})
		case "off":
			return sendResult(cmd, api.SetTrackingState{Enabled: false})
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
	},
}

// pinCmd 置顶或取消置顶记录
var pinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin a record so it is never evicted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendResult(cmd, api.SetPinned{ID: args[0], Pinned: !unpin})
	},
}

func init() {
	logCmd.Flags().BoolVar(&rawJSON, "json", false, "print the raw JSON response")
	pinCmd.Flags().BoolVar(&unpin, "off", false, "remove the pin instead")
}

// send 向守护进程发送一条消息并返回响应体
func send(cmd *cobra.Command, c api.Command) ([]byte, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	msg, err := api.Encode(c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+cfg.HTTP.Addr+"/", bytes.NewReader(msg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backtrack daemon not reachable at %s: %w", cfg.HTTP.Addr, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", gjson.GetBytes(body, "code").String(), gjson.GetBytes(body, "message").String())
	}
	return body, nil
}

// sendResult 发送变更类命令并检查 success
func sendResult(cmd *cobra.Command, c api.Command) error {
	body, err := send(cmd, c)
	if err != nil {
		return err
	}
	var res api.ResultResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%s failed: %s", c.Type(), res.Error)
	}
	return nil
}

// printLog 以表格形式输出日志
func printLog(w io.Writer, log []domain.Record, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tMETHOD\tSTATUS\tTYPE\tSIZE\tURL")
	for _, r := range log {
		id := r.ID
		if r.Pinned {
			id = "*" + id
		}
		when := humanize.RelTime(time.UnixMilli(int64(r.Timestamp)), now, "ago", "from now")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", id, when, r.Method, r.StatusCode, r.ResourceType, r.Size, r.URL)
	}
	return tw.Flush()
}
