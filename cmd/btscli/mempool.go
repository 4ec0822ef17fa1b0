package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var mempoolCmd = &cobra.Command{
	Use:   "mempool",
	Short: "List pending transaction IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiGet("/mempool")
		if err != nil {
			return err
		}
		var ids []string
		if err := json.Unmarshal(body, &ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("mempool is empty")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mempoolCmd)
}
