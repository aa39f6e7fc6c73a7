package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status",
	Long:  `Query the health endpoint of a running IdeaScout gateway.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "gateway address (default from server config)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.Server.Addr()
	}

	out := cmd.OutOrStdout()
	client := &http.Client{Timeout: 5 * time.Second}

	start := time.Now()
	resp, err := client.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || resp.StatusCode != http.StatusOK {
		fmt.Fprintf(out, "Status: unhealthy (HTTP %d)\n", resp.StatusCode)
		return nil
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "Address: %s\n", addr)
	fmt.Fprintf(out, "Latency: %s\n", formatDuration(time.Since(start)))
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
