package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

var rootCmd = &cobra.Command{
	Use:   "btscli",
	Short: "bitshares-toolkit node CLI",
	Long:  "A command-line tool for inspecting and driving a bitshares-toolkit node over its HTTP API.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://localhost:8080", "Node API base URL")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// apiGet fetches a node API path and returns the raw body.
func apiGet(path string) ([]byte, error) {
	resp, err := http.Get(apiAddr + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("node returned %s: %s", resp.Status, body)
	}
	return body, nil
}
