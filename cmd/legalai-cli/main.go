// Package main provides the legalai-cli command-line tool for managing a
// running legalaid server and validating configuration files.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	legalai "github.com/maplecourt/legalai"
	"github.com/maplecourt/legalai/internal/version"
)

var (
	serverURL  string
	adminToken string
)

func main() {
	root := &cobra.Command{
		Use:     "legalai-cli",
		Short:   "Manage the legal AI orchestration server",
		Version: version.String(),
	}
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "base URL of the legalaid server")
	root.PersistentFlags().StringVarP(&adminToken, "token", "t", os.Getenv("ADMIN_TOKEN"), "admin bearer token")

	root.AddCommand(
		newValidateCmd(),
		newStatusCmd(),
		newFlagsCmd(),
		newClearCacheCmd(),
		newLogsCmd(),
		newChatCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := legalai.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := legalai.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation: %w", err)
			}

			var names []string
			for _, p := range cfg.Providers {
				names = append(names, p.Name)
			}
			fmt.Println("✓ Config is valid")
			fmt.Printf("  Providers:     %s\n", strings.Join(names, ", "))
			fmt.Printf("  Cache backend: %s\n", cfg.Cache.Backend)
			fmt.Printf("  Concurrency:   %d\n", cfg.Queue.Concurrency)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server status (flags, providers, cache, queue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printAPI(http.MethodGet, "/admin/status", nil)
		},
	}
}

func newFlagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flags [name=true|false ...]",
		Short: "Show or update feature flags",
		Long: `With no arguments, prints the current feature flags.
With name=value arguments, patches the named flags, for example:

  legalai-cli flags useCache=false researchFeature=true`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return printAPI(http.MethodGet, "/admin/status", nil)
			}
			patch := map[string]bool{}
			for _, arg := range args {
				name, value, ok := strings.Cut(arg, "=")
				if !ok || (value != "true" && value != "false") {
					return fmt.Errorf("invalid flag argument %q, want name=true or name=false", arg)
				}
				patch[name] = value == "true"
			}
			body, err := json.Marshal(patch)
			if err != nil {
				return err
			}
			return printAPI(http.MethodPost, "/admin/feature-flags", body)
		},
	}
}

func newClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Clear the response caches on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printAPI(http.MethodPost, "/admin/clear-cache", nil)
		},
	}
}

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent request log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printAPI(http.MethodGet, fmt.Sprintf("/admin/logs?limit=%d", limit), nil)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a chat message through the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{"message": strings.Join(args, " ")})
			if err != nil {
				return err
			}
			return printAPI(http.MethodPost, "/api/chat", body)
		},
	}
}

// printAPI calls the server and pretty-prints the JSON response.
func printAPI(method, path string, body []byte) error {
	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Println(strings.TrimSpace(string(raw)))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
