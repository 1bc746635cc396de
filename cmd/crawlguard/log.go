package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logFlags struct {
	clientConfig
	ip    string
	limit int
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent verification decisions from a running server",
	RunE:  runLog,
}

func init() {
	rootCmd.AddCommand(logCmd)

	addClientFlags(logCmd, &logFlags.clientConfig)
	logCmd.Flags().StringVar(&logFlags.ip, "ip", "", "only show decisions for this source address")
	logCmd.Flags().IntVar(&logFlags.limit, "limit", 50, "maximum number of records")
}

func runLog(cmd *cobra.Command, args []string) error {
	c, err := logFlags.newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListVerifications(logFlags.ip, logFlags.limit)
	if err != nil {
		return err
	}

	if len(resp.Verifications) == 0 {
		fmt.Println("No verifications recorded.")
		return nil
	}

	fmt.Printf("%-19s  %-39s  %-12s  %-7s  %s\n", "TIME", "ADDRESS", "IDENTITY", "VERDICT", "REASON")
	for _, v := range resp.Verifications {
		occurredAt, _ := time.Parse(time.RFC3339, v.OccurredAt)
		identity := v.Identity
		if identity == "" {
			identity = "-"
		}
		verdict := "deny"
		if v.Legitimate {
			verdict = "allow"
		}
		fmt.Printf("%-19s  %-39s  %-12s  %-7s  %s\n",
			occurredAt.Format("2006-01-02 15:04:05"), v.IP, identity, verdict, v.Reason)
	}

	return nil
}
