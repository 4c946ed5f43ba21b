package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevemurr/state-table-server/command"
	"github.com/stevemurr/state-table-server/config"
)

type execOptions struct {
	addr      string
	cmd       string
	state     string
	data      string
	id        int64
	maxLength int
	timeout   time.Duration
}

func newExecCmd() *cobra.Command {
	opts := &execOptions{}
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Send one request to a running server and print the reply",
		Example: `  statetable exec --cmd CREATE_STATE --state players --max-length 100
  statetable exec --cmd CREATE_RECORD --state players --data '{"name":"ann"}'
  statetable exec --cmd SET_STATE --state players --data @players.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := opts.request(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := send(ctx, opts.addr, body)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if !resp.OK() {
				return errors.New(resp.Message())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "http://"+config.DefaultListenAddr, "Server base URL")
	cmd.Flags().StringVar(&opts.cmd, "cmd", "", "Command name, e.g. LIST_STATES")
	cmd.Flags().StringVar(&opts.state, "state", "", "Target state name")
	cmd.Flags().StringVar(&opts.data, "data", "", "JSON payload, or @file to read it from a file")
	cmd.Flags().Int64Var(&opts.id, "id", 0, "Record id")
	cmd.Flags().IntVar(&opts.maxLength, "max-length", 0, "Capacity for CREATE_STATE")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("cmd")
	return cmd
}

// request builds the JSON request body. Only flags the user set are sent.
func (o *execOptions) request(cmd *cobra.Command) ([]byte, error) {
	req := map[string]any{"cmd": o.cmd}
	if cmd.Flags().Changed("state") {
		req["state"] = o.state
	}
	if cmd.Flags().Changed("id") {
		req["id"] = o.id
	}
	if cmd.Flags().Changed("max-length") {
		req["max_length"] = o.maxLength
	}
	if cmd.Flags().Changed("data") {
		raw := []byte(o.data)
		if path, ok := strings.CutPrefix(o.data, "@"); ok {
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read data file: %w", err)
			}
			raw = b
		}
		if !json.Valid(raw) {
			return nil, errors.New("--data is not valid JSON")
		}
		req["data"] = json.RawMessage(raw)
	}
	return json.Marshal(req)
}

func send(ctx context.Context, addr string, body []byte) (command.Response, error) {
	url := strings.TrimRight(addr, "/") + "/"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp command.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	return resp, nil
}
