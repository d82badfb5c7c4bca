package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var healthcheckURL string

// healthcheckCmd is a thin CLI probe intended for container liveness/readiness
// probes that would rather exec a binary than curl, against the same
// GET /health/ready route httpapi.Server exposes.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running server's /health/ready endpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(healthcheckURL)
		if err != nil {
			return eris.Wrap(err, "healthcheck: request failed")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return eris.Errorf("healthcheck: unexpected status %d", resp.StatusCode)
		}
		fmt.Println("ok")
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "http://localhost:8080/health/ready", "URL to probe")
	rootCmd.AddCommand(healthcheckCmd)
}
