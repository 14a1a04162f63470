// Command kimi-proxy serves an OpenAI compatible chat API in front of the
// Kimi chat backend.
//
// CLI Usage:
//
//	kimi-proxy serve [--config proxy.yaml] [--listen-addr :8080]
//	  Runs the HTTP server.
//
//	kimi-proxy inspect-token [token]
//	  Classifies a credential and prints its session claims. Reads the
//	  token from KIMI_TOKEN when no argument is given.
//
// Environment Variables:
//   - LISTEN_ADDR: HTTP listen address (default ":8080")
//   - KIMI_BASE_URL: backend base URL (default "https://www.kimi.com")
//   - LOG_HEADERS: set to "true" to log masked inbound headers at debug level
//   - STREAM_BUFFER: SSE frames buffered per stream (default 16)
//   - LOG_LEVEL: debug, info, warn or error (default "info")
//
// A .env file in the working directory or any parent is loaded first.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// loadEnvFile loads environment variables from a .env file if present.
// It attempts to load from the current directory and parent directories
// up to the root directory. Existing variables are never overridden.
func loadEnvFile() {
	workDir, err := os.Getwd()
	if err != nil {
		log.Warn("could not determine current directory", "err", err)
		return
	}

	for dir := workDir; ; dir = filepath.Dir(dir) {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				log.Warn("could not load env file", "path", envPath, "err", err)
				return
			}
			log.Debug("loaded environment", "path", envPath)
			return
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
}

// configureLogging sets the global charmbracelet/log level.
func configureLogging(levelRaw string) error {
	levelRaw = strings.TrimSpace(levelRaw)
	if levelRaw == "" {
		levelRaw = "info"
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return fmt.Errorf("invalid log level %q", levelRaw)
	}
	log.SetLevel(level)
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kimi-proxy",
		Short: "OpenAI compatible proxy for the Kimi chat backend",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		loadEnvFile()
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newInspectTokenCmd())
	return root
}

func main() {
	log.SetReportTimestamp(true)
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
