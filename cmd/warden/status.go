// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// ProbeStatus is the outcome of one health probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

var probes = []string{"liveness", "readiness"}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running warden",
		Long:  `Query the liveness and readiness probes on metrics.addr.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			if conf.Metrics.Addr == "" {
				return invalid("metrics.addr", "metrics.addr is empty; the health server is disabled")
			}
			return runStatus(cmd, cfg, baseURL(conf.Metrics.Addr))
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "probe timeout")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "metrics/health HTTP address")

	return cmd
}

// baseURL turns a listen address into a URL a client can dial.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig, base string) error {
	client := &http.Client{Timeout: cfg.timeout}
	statuses := make([]ProbeStatus, 0, len(probes))
	for _, probe := range probes {
		statuses = append(statuses, queryProbe(cmd.Context(), client, base, probe))
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Print(formatStatusTable(statuses))
	return nil
}

func queryProbe(ctx context.Context, client *http.Client, base, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz/"+probe, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		status.Error = fmt.Sprintf("failed to read response: %v", err)
	}
	status.Status = resp.StatusCode
	status.Body = strings.TrimSpace(string(body))
	status.OK = resp.StatusCode == http.StatusOK
	return status
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATE\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t-----\t------")
	for _, s := range statuses {
		state := "ok"
		detail := s.Body
		switch {
		case s.Error != "":
			state, detail = "unreachable", s.Error
		case !s.OK:
			state = fmt.Sprintf("failing (%d)", s.Status)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", s.Probe, state, detail)
	}

	_ = w.Flush()
	return string(buf)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
