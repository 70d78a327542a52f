package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/jmerrifield20/QuantumAegis/internal/intel"
	"github.com/jmerrifield20/QuantumAegis/internal/metrics"
	"github.com/jmerrifield20/QuantumAegis/internal/rng"
	"github.com/jmerrifield20/QuantumAegis/internal/threat"
	"github.com/jmerrifield20/QuantumAegis/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
	format    string
	seed      uint64
	timeout   time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "QuantumAegis threat dashboard CLI",
	Long: `aegis prints the QuantumAegis dashboard metrics and threat feed.

With --server it queries a running aegis-server; otherwise it generates the
same data locally. Use --seed for reproducible local output:

  aegis threats --seed 42 --limit 5
  aegis metrics --server http://localhost:8080 --format json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.SetConfigName("aegis")
			viper.SetConfigType("yaml")
			viper.AddConfigPath("configs")
			viper.AddConfigPath(".")
		}
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("cli.server")
		}
		switch format {
		case formatTable, formatJSON:
			return nil
		default:
			return fmt.Errorf("unknown format %q (want %s or %s)", format, formatTable, formatJSON)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/aegis.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "aegis-server base URL; generate locally when empty")
	rootCmd.PersistentFlags().StringVar(&format, "format", formatTable, "Output format: table or json")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Random seed for local generation (default: current time)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "Request timeout")
	_ = viper.BindPFlag("cli.server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(threatsCmd)
	rootCmd.AddCommand(ipCheckCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.WithTimeout(timeout), client.WithUserAgent("aegis-cli/"+version))
}

// source returns the local random source: seeded when --seed was given,
// time-derived otherwise.
func source(cmd *cobra.Command, ref time.Time) rng.Source {
	if cmd.Flags().Changed("seed") {
		return rng.New(seed)
	}
	return rng.ForTime(ref)
}

// ── metrics ──────────────────────────────────────────────────────────────────

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the headline dashboard metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var m *client.Metrics
		if serverURL != "" {
			c, err := newClient()
			if err != nil {
				return err
			}
			if m, err = c.Metrics(ctx); err != nil {
				return fmt.Errorf("fetch metrics: %w", err)
			}
		} else {
			ref := time.Now().UTC()
			m = fromSnapshot(metrics.Generate(nil, ref, source(cmd, ref)))
		}
		return render(cmd.OutOrStdout(), m, func() { printMetrics(cmd.OutOrStdout(), m) })
	},
}

// ── threats ──────────────────────────────────────────────────────────────────

var threatsLimit int

var threatsCmd = &cobra.Command{
	Use:   "threats",
	Short: "Show the threat feed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var items []client.Threat
		if serverURL != "" {
			c, err := newClient()
			if err != nil {
				return err
			}
			if items, err = c.Threats(ctx, threatsLimit); err != nil {
				return fmt.Errorf("fetch threats: %w", err)
			}
		} else {
			ref := time.Now().UTC()
			for _, s := range threat.Classify(nil, ref, threatsLimit, source(cmd, ref)) {
				items = append(items, fromSummary(s))
			}
		}
		return render(cmd.OutOrStdout(), items, func() { printThreats(cmd.OutOrStdout(), items) })
	},
}

func init() {
	threatsCmd.Flags().IntVar(&threatsLimit, "limit", threat.DefaultMaxResults, "Maximum number of threats")
}

// ── ip-check ─────────────────────────────────────────────────────────────────

var ipCheckCmd = &cobra.Command{
	Use:   "ip-check <ip>",
	Short: "Score an IP address against the intelligence providers",
	Long: `ip-check combines VirusTotal, Shodan and AbuseIPDB signals into a risk
score and an allow/flag/deny decision.

Locally, providers without an API key (VIRUSTOTAL_API_KEY, SHODAN_API_KEY,
ABUSEIPDB_API_KEY) answer with deterministic demo data.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, err := netip.ParseAddr(strings.TrimSpace(args[0]))
		if err != nil {
			return fmt.Errorf("invalid IP address %q", args[0])
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		var d *client.Decision
		if serverURL != "" {
			c, err := newClient()
			if err != nil {
				return err
			}
			if d, err = c.IPCheck(ctx, ip.String()); err != nil {
				return fmt.Errorf("ip check: %w", err)
			}
		} else {
			checker := intel.NewIPChecker(
				intel.NewVirusTotal(intel.VirusTotalConfig{APIKey: viper.GetString("virustotal.api_key"), Timeout: timeout}),
				intel.NewShodan(viper.GetString("shodan.api_key"), "", timeout),
				intel.NewAbuseIPDB(viper.GetString("abuseipdb.api_key"), "", timeout),
				0, zap.NewNop(),
			)
			if d, err = fromDecision(checker.Check(ctx, ip)); err != nil {
				return err
			}
		}
		return render(cmd.OutOrStdout(), d, func() { printDecision(cmd.OutOrStdout(), d) })
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "aegis %s\n", version)
	},
}
