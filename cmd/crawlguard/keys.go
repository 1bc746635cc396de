package main

import (
	"fmt"
	"time"

	"github.com/rsclarke/crawlguard/internal/auth"
	"github.com/rsclarke/crawlguard/internal/config"
	"github.com/rsclarke/crawlguard/internal/db"
	"github.com/spf13/cobra"
)

var keysFlags struct {
	dbPath string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  runKeysCreate,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <prefix>",
	Short: "Revoke an API key by its prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)

	keysCmd.PersistentFlags().StringVar(&keysFlags.dbPath, "db", getEnv("CRAWLGUARD_DB", config.Default().DBPath), "database path")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	database, err := db.Open(keysFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	displayKey, prefix, hash, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("generate API key: %w", err)
	}
	if _, err := db.CreateAPIKey(database, prefix, hash); err != nil {
		return fmt.Errorf("create API key: %w", err)
	}

	fmt.Printf("API key (save this, it will not be shown again):\n%s\n", displayKey)
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	database, err := db.Open(keysFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	keys, err := db.ListAPIKeys(database)
	if err != nil {
		return fmt.Errorf("list API keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found.")
		return nil
	}

	fmt.Printf("%-14s  %-19s  %s\n", "PREFIX", "CREATED", "STATUS")
	for _, key := range keys {
		status := "active"
		if key.RevokedAt != nil {
			status = "revoked"
		}
		created := time.Unix(key.CreatedAt, 0).UTC().Format("2006-01-02 15:04:05")
		fmt.Printf("%-14s  %-19s  %s\n", key.KeyPrefix, created, status)
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	database, err := db.Open(keysFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	revoked, err := db.RevokeAPIKey(database, args[0])
	if err != nil {
		return fmt.Errorf("revoke API key: %w", err)
	}
	if !revoked {
		return fmt.Errorf("no active key with prefix %q", args[0])
	}

	fmt.Printf("Revoked key %s\n", args[0])
	return nil
}
