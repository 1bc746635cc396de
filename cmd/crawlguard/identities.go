package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var identitiesFlags struct {
	clientConfig
}

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List the crawler identities registered on a running server",
	RunE:  runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	addClientFlags(identitiesCmd, &identitiesFlags.clientConfig)
}

func runIdentities(cmd *cobra.Command, args []string) error {
	c, err := identitiesFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListIdentities()
	if err != nil {
		return err
	}

	fmt.Printf("%-14s  %-8s  %s\n", "IDENTITY", "RANGES", "RDNS SUFFIXES")
	for _, info := range resp.Identities {
		state := info.RangeState
		if state == "" {
			state = "-"
		}
		fmt.Printf("%-14s  %-8s  %s\n", info.Key, state, strings.Join(info.Suffixes, ", "))
	}

	return nil
}
