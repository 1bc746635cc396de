package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkFlags struct {
	clientConfig
	requireBoth bool
}

var checkCmd = &cobra.Command{
	Use:   "check <ip> <user-agent>",
	Short: "Verify a request through a running API server",
	Long: `Submit one verification to a running crawlguard server, so the decision
uses the server's warmed range cache and lands in its audit log.`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	addClientFlags(checkCmd, &checkFlags.clientConfig)
	checkCmd.Flags().BoolVar(&checkFlags.requireBoth, "require-both", false, "require both DNS and range verification for identities that publish ranges")
}

func runCheck(cmd *cobra.Command, args []string) error {
	c, err := checkFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.Verify(args[0], args[1], checkFlags.requireBoth)
	if err != nil {
		return err
	}

	verdict := "NOT VERIFIED"
	if resp.Legitimate {
		verdict = "LEGITIMATE CRAWLER"
	}

	fmt.Printf("Address:   %s\n", resp.IP)
	if resp.Identity != "" {
		fmt.Printf("Identity:  %s\n", resp.Identity)
	} else {
		fmt.Printf("Identity:  (not a recognized crawler)\n")
	}
	if resp.RDNSHostname != "" {
		fmt.Printf("rDNS:      %s\n", resp.RDNSHostname)
	}
	fmt.Printf("DNS check:   %v\n", resp.RDNSVerified)
	fmt.Printf("Range check: %v\n", resp.RangeVerified)
	fmt.Printf("Verdict:   %s\n", verdict)
	fmt.Printf("Reason:    %s\n", resp.Reason)

	return nil
}
