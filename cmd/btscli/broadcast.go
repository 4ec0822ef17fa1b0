package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var bearerToken string

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <trx.json>",
	Short: "Broadcast a signed transaction from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		req, err := http.NewRequest(http.MethodPost, apiAddr+"/broadcast_tx", bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if bearerToken != "" {
			req.Header.Set("Authorization", "Bearer "+bearerToken)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node returned %s: %s", resp.Status, body)
		}
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	broadcastCmd.Flags().StringVar(&bearerToken, "token", "", "JWT bearer token for the broadcast endpoint")
	rootCmd.AddCommand(broadcastCmd)
}
