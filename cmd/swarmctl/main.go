// Command swarmctl is the operator CLI for a running swarmd daemon: a
// thin JSON-RPC client dialing POST /rpc, rendering terse colorized
// output. Grounded on the teacher's cobra-based cmd/bd command tree for
// command structure, and on cmd/bd-examples/main.go for its
// lipgloss.AdaptiveColor pass/warn/fail styling — the only place in the
// teacher's own cmd/ tree that actually uses lipgloss (cmd/bd's own
// commands render plain text).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var (
	daemonAddr string
	asJSON     bool
)

func main() {
	root := &cobra.Command{
		Use:   "swarmctl",
		Short: "Operator CLI for the swarmd coordination daemon",
	}
	root.PersistentFlags().StringVar(&daemonAddr, "addr", "http://127.0.0.1:8080", "swarmd HTTP address")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON instead of rendered output")

	root.AddCommand(instancesCmd(), flushCmd(), tasksCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// client is a minimal JSON-RPC 2.0 caller against swarmd's /rpc endpoint.
type client struct {
	addr string
	http *http.Client
}

func newClient() *client {
	return &client{addr: daemonAddr, http: &http.Client{Timeout: 10 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *client) call(method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.addr+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial swarmd at %s: %w", c.addr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("%s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

func printResult(raw json.RawMessage, render func(json.RawMessage)) {
	if asJSON || render == nil {
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			fmt.Println(pretty.String())
		} else {
			fmt.Println(string(raw))
		}
		return
	}
	render(raw)
}

func instancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List registered specialist instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().call("system.get_state", map[string]any{})
			if err != nil {
				return err
			}
			printResult(result, renderInstances)
			return nil
		},
	}
	return cmd
}

func renderInstances(raw json.RawMessage) {
	var state struct {
		Instances []struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			CurrentLoad int    `json:"current_load"`
			MaxLoad     int    `json:"max_load"`
			Roles       []string `json:"roles"`
		} `json:"instances"`
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(boldStyle.Render(fmt.Sprintf("%-36s %-8s %-8s %s", "ID", "STATUS", "LOAD", "ROLES")))
	for _, inst := range state.Instances {
		style := okStyle
		switch inst.Status {
		case "BUSY":
			style = warnStyle
		case "OFFLINE":
			style = failStyle
		}
		fmt.Printf("%-36s %s %-8s %s\n",
			inst.ID,
			style.Render(fmt.Sprintf("%-8s", inst.Status)),
			fmt.Sprintf("%d/%d", inst.CurrentLoad, inst.MaxLoad),
			inst.Roles,
		)
	}
}

func flushCmd() *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Flush all coordination state (requires --confirm matching the daemon's token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if confirm == "" {
				return fmt.Errorf("refusing to flush without --confirm <token>")
			}
			result, err := newClient().call("system.flush", map[string]any{"confirm": confirm})
			if err != nil {
				return err
			}
			printResult(result, func(json.RawMessage) { fmt.Println(okStyle.Render("flushed")) })
			return nil
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "flush confirmation token")
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "tasks", Short: "Task inspection and submission"}
	cmd.AddCommand(tasksListCmd(), tasksCreateCmd())
	return cmd
}

func tasksListCmd() *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by label",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{}
			if len(labels) > 0 {
				params["labels"] = labels
			}
			result, err := newClient().call("task.list", params)
			if err != nil {
				return err
			}
			printResult(result, renderTasks)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&labels, "label", nil, "filter by label (repeatable)")
	return cmd
}

func renderTasks(raw json.RawMessage) {
	var list struct {
		Tasks []struct {
			ID       string `json:"id"`
			Text     string `json:"text"`
			Status   string `json:"status"`
			Priority int    `json:"priority"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(boldStyle.Render(fmt.Sprintf("%-36s %-12s %-4s %s", "ID", "STATUS", "PRI", "TEXT")))
	for _, t := range list.Tasks {
		style := okStyle
		switch t.Status {
		case "failed":
			style = failStyle
		case "in_progress", "pending":
			style = warnStyle
		}
		fmt.Printf("%-36s %s %-4d %s\n", t.ID, style.Render(fmt.Sprintf("%-12s", t.Status)), t.Priority, t.Text)
	}
}

func tasksCreateCmd() *cobra.Command {
	var (
		text          string
		priority      int
		autoDecompose bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a new top-level task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return fmt.Errorf("--text is required")
			}
			result, err := newClient().call("task.create", map[string]any{
				"text": text, "priority": priority, "auto_decompose": autoDecompose,
			})
			if err != nil {
				return err
			}
			printResult(result, nil)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "task description")
	cmd.Flags().IntVar(&priority, "priority", 5, "task priority")
	cmd.Flags().BoolVar(&autoDecompose, "auto-decompose", false, "immediately decompose into subtasks")
	return cmd
}
