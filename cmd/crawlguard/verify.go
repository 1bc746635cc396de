package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rsclarke/crawlguard/internal/config"
	"github.com/rsclarke/crawlguard/internal/verifier"
	"github.com/spf13/cobra"
)

var verifyFlags struct {
	rangeTTL     time.Duration
	dnsTimeout   time.Duration
	dnsServer    string
	identityFile string
	requireBoth  bool
	timeout      time.Duration
}

var verifyCmd = &cobra.Command{
	Use:   "verify <ip> <user-agent>",
	Short: "Verify a single request claiming to be a crawler",
	Long: `Run one verification directly, without the API server.

Example:
  crawlguard verify 66.249.66.1 "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	defaults := config.Default()
	verifyCmd.Flags().DurationVar(&verifyFlags.rangeTTL, "range-ttl", defaults.RangeTTL, "how long fetched IP range lists stay fresh")
	verifyCmd.Flags().DurationVar(&verifyFlags.dnsTimeout, "dns-timeout", defaults.DNSTimeout, "timeout for a single DNS lookup")
	verifyCmd.Flags().StringVar(&verifyFlags.dnsServer, "dns-server", getEnv("CRAWLGUARD_DNS_SERVER", ""), "upstream DNS server (host:port); empty uses the system resolver")
	verifyCmd.Flags().StringVar(&verifyFlags.identityFile, "identities", getEnv("CRAWLGUARD_IDENTITIES", ""), "YAML file extending the built-in crawler registry")
	verifyCmd.Flags().BoolVar(&verifyFlags.requireBoth, "require-both", false, "require both DNS and range verification for identities that publish ranges")
	verifyCmd.Flags().DurationVar(&verifyFlags.timeout, "timeout", 30*time.Second, "overall verification timeout")
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.RangeTTL = verifyFlags.rangeTTL
	cfg.DNSTimeout = verifyFlags.dnsTimeout
	cfg.DNSServer = verifyFlags.dnsServer
	cfg.IdentityFile = verifyFlags.identityFile

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), verifyFlags.timeout)
	defer cancel()

	result := engine.Verify(ctx, verifier.Request{
		Addr:        args[0],
		UserAgent:   args[1],
		RequireBoth: verifyFlags.requireBoth,
	})

	verdict := "NOT VERIFIED"
	if result.Legitimate {
		verdict = "LEGITIMATE CRAWLER"
	}

	fmt.Printf("Address:   %s\n", result.Addr)
	if result.Identity != "" {
		fmt.Printf("Identity:  %s\n", result.Identity)
	} else {
		fmt.Printf("Identity:  (not a recognized crawler)\n")
	}
	if result.Hostname != "" {
		fmt.Printf("rDNS:      %s\n", result.Hostname)
	}
	fmt.Printf("DNS check:   %v\n", result.DNSVerified)
	fmt.Printf("Range check: %v\n", result.RangeVerified)
	fmt.Printf("Verdict:   %s\n", verdict)
	fmt.Printf("Reason:    %s\n", result.Reason)

	return nil
}
