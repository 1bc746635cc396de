package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsclarke/crawlguard/internal/auth"
	"github.com/rsclarke/crawlguard/internal/config"
	"github.com/rsclarke/crawlguard/internal/db"
	"github.com/rsclarke/crawlguard/internal/logging"
	"github.com/rsclarke/crawlguard/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var serverFlags struct {
	apiPort      int
	dbPath       string
	tlsCert      string
	tlsKey       string
	rangeTTL     time.Duration
	dnsTimeout   time.Duration
	dnsServer    string
	identityFile string
	requireBoth  bool
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the verification API server",
	Long: `Start the crawlguard API server.

The server exposes POST /v1/verify for crawler identity verification,
GET /v1/identities for the loaded registry, and GET /v1/verifications for
the decision audit log. All /v1 routes require a Bearer API key; one is
created and printed on first start.

TLS:
  --tls-cert + --tls-key  → serve HTTPS with the provided certificate
  (neither)               → plain HTTP (terminate TLS upstream)`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	defaults := config.Default()
	serverCmd.Flags().IntVar(&serverFlags.apiPort, "api-port", getEnvInt("CRAWLGUARD_API_PORT", defaults.APIPort), "API port to listen on")
	serverCmd.Flags().StringVar(&serverFlags.dbPath, "db", getEnv("CRAWLGUARD_DB", defaults.DBPath), "database path")
	serverCmd.Flags().StringVar(&serverFlags.tlsCert, "tls-cert", "", "path to TLS certificate file")
	serverCmd.Flags().StringVar(&serverFlags.tlsKey, "tls-key", "", "path to TLS key file")
	serverCmd.Flags().DurationVar(&serverFlags.rangeTTL, "range-ttl", defaults.RangeTTL, "how long fetched IP range lists stay fresh")
	serverCmd.Flags().DurationVar(&serverFlags.dnsTimeout, "dns-timeout", defaults.DNSTimeout, "timeout for a single DNS lookup")
	serverCmd.Flags().StringVar(&serverFlags.dnsServer, "dns-server", getEnv("CRAWLGUARD_DNS_SERVER", ""), "upstream DNS server (host:port); empty uses the system resolver")
	serverCmd.Flags().StringVar(&serverFlags.identityFile, "identities", getEnv("CRAWLGUARD_IDENTITIES", ""), "YAML file extending the built-in crawler registry")
	serverCmd.Flags().BoolVar(&serverFlags.requireBoth, "require-both", false, "require both DNS and range verification for identities that publish ranges")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg := &config.Config{
		DBPath:       serverFlags.dbPath,
		APIPort:      serverFlags.apiPort,
		TLSCertFile:  serverFlags.tlsCert,
		TLSKeyFile:   serverFlags.tlsKey,
		RangeTTL:     serverFlags.rangeTTL,
		DNSTimeout:   serverFlags.dnsTimeout,
		DNSServer:    serverFlags.dnsServer,
		IdentityFile: serverFlags.identityFile,
		RequireBoth:  serverFlags.requireBoth,
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	count, err := db.CountAPIKeys(database)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	if count == 0 {
		displayKey, prefix, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return fmt.Errorf("generate API key: %w", err)
		}
		if _, err := db.CreateAPIKey(database, prefix, hash); err != nil {
			return fmt.Errorf("create API key: %w", err)
		}
		fmt.Println("=============================================================")
		fmt.Println("API KEY CREATED (save this, it will not be shown again):")
		fmt.Println(displayKey)
		fmt.Println("=============================================================")
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	apiSrv := &server.APIServer{
		DB:          database,
		Engine:      engine,
		Logger:      logger.Named("api"),
		RequireBoth: cfg.RequireBoth,
	}

	apiErrLog, _ := zap.NewStdLogAt(logger.Named("api"), zapcore.ErrorLevel)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           apiSrv.Handler(),
		ErrorLog:          apiErrLog,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	manualTLS := cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
	if manualTLS {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		apiServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}

		go func() {
			logger.Info("starting api server", logging.Port(cfg.APIPort), logging.TLSMode("manual"))
			if err := apiServer.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				logger.Error("api server error", zap.Error(err))
			}
		}()
	} else {
		go func() {
			logger.Info("starting api server", logging.Port(cfg.APIPort), logging.TLSMode("none"))
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("api server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return apiServer.Shutdown(ctx)
}
