// sitectl is a diagnostic command-line tool for sitekit deployments:
// validate a configuration file or probe a site's reachability.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sitekit/sitekit/internal/config"
	"github.com/sitekit/sitekit/internal/transport"
	"github.com/sitekit/sitekit/pkg/logging"
)

var (
	cfgFile string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sitectl",
	Short: "Diagnostics for sitekit deployments",
	Long:  `sitectl validates sitekit configuration files and probes collaboration-platform sites.`,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Example: `  sitectl validate --config sitekit.yaml
  sitectl validate`,
	RunE: runValidate,
}

var probeCmd = &cobra.Command{
	Use:   "probe <site-url>",
	Short: "Check reachability of a site",
	Args:  cobra.ExactArgs(1),
	Example: `  sitectl probe https://contoso.example.com/sites/marketing
  sitectl probe --timeout 5s https://contoso.example.com`,
	RunE: runProbe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default sitekit.yaml)")
	probeCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "probe timeout")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(probeCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := cfgFile
	if configPath == "" {
		for _, path := range []string{"sitekit.yaml", "sitekit.yml"} {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
		if configPath == "" {
			return fmt.Errorf("no configuration file found, specify with --config or create sitekit.yaml")
		}
	}

	fmt.Printf("Validating configuration file: %s\n", configPath)

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile(configPath); err != nil {
		color.Red("FAIL: %v", err)
		return err
	}
	if err := cfg.Validate(); err != nil {
		color.Red("FAIL: %v", err)
		return err
	}

	color.Green("OK: configuration is valid")
	fmt.Printf("  component: %s\n", cfg.ComponentName)
	fmt.Printf("  log level: %s\n", cfg.Logging.Level)
	fmt.Printf("  http:      timeout=%s retries=%d auth=%t\n", cfg.HTTP.Timeout, cfg.HTTP.Retries, cfg.HTTP.EnableAuth)
	fmt.Printf("  cache:     strategy=%s ttl=%s\n", cfg.Cache.Strategy, cfg.Cache.TTL)
	return nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	siteURL := args[0]

	logger := logging.New(logging.Config{
		Level:     logging.WARN,
		Component: "sitectl",
	})
	t := transport.New(transport.Config{
		Timeout: timeout,
		Retries: 0,
	}, logger, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	resp, err := t.Get(ctx, siteURL, nil)
	elapsed := time.Since(start)
	if err != nil {
		color.Red("FAIL: %s (%v): %v", siteURL, elapsed.Round(time.Millisecond), err)
		return err
	}

	color.Green("OK: %s responded %d in %v", siteURL, resp.StatusCode, elapsed.Round(time.Millisecond))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
