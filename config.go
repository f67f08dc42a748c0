package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind    string
	port    int
	prefix  string
	profile bool
	tlsCert string
	tlsKey  string
	verbose bool
	version bool

	upstreamHost string
	apiKey       string
	locale       string
	email        string
	password     string

	pushTimeout    time.Duration
	pushRetries    int
	reconnectDelay time.Duration
	maxReconnects  int

	databaseURL   string
	dedupWindow   time.Duration
	retentionDays int

	corsOrigin string
	publicURL  string
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.email == "" || c.password == "" {
		return errors.New("both --email and --password are required to log in upstream")
	}
	if c.pushRetries < 1 {
		return fmt.Errorf("invalid push retry count (must be at least 1): %d", c.pushRetries)
	}
	if c.maxReconnects < 1 {
		return fmt.Errorf("invalid reconnect cap (must be at least 1): %d", c.maxReconnects)
	}
	if c.retentionDays < 1 {
		return fmt.Errorf("invalid retention window (must be at least 1 day): %d", c.retentionDays)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// timelapseEnabled reports whether a persistence backend was configured.
// Absence disables the event log rather than failing startup.
func (c *Config) timelapseEnabled() bool {
	return c.databaseURL != ""
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("RFMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "rfmap",
		Short:         "Live map relay for Reversed Front: mirrors the game's city/union/nation state to map clients.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: RFMAP_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 3001, "port to listen on (env: RFMAP_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: RFMAP_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: RFMAP_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: RFMAP_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: RFMAP_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: RFMAP_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: RFMAP_VERSION)")

	fs.StringVar(&cfg.upstreamHost, "upstream-host", "api.komisureiya.com", "hostname of the upstream game API (env: RFMAP_UPSTREAM_HOST)")
	fs.StringVar(&cfg.apiKey, "api-key", "rfront2023", "api key sent with the upstream login (env: RFMAP_API_KEY)")
	fs.StringVar(&cfg.locale, "locale", "zh_TW", "locale for the upstream session and locale channel (env: RFMAP_LOCALE)")
	fs.StringVar(&cfg.email, "email", "", "upstream account email (env: RFMAP_EMAIL)")
	fs.StringVar(&cfg.password, "password", "", "upstream account password (env: RFMAP_PASSWORD)")

	fs.DurationVar(&cfg.pushTimeout, "push-timeout", 20*time.Second, "timeout for a single channel push attempt (env: RFMAP_PUSH_TIMEOUT)")
	fs.IntVar(&cfg.pushRetries, "push-retries", 3, "total push attempts before a timeout is surfaced (env: RFMAP_PUSH_RETRIES)")
	fs.DurationVar(&cfg.reconnectDelay, "reconnect-delay", 5*time.Second, "delay before an upstream reconnection attempt (env: RFMAP_RECONNECT_DELAY)")
	fs.IntVar(&cfg.maxReconnects, "max-reconnects", 5, "consecutive reconnection failures before giving up (env: RFMAP_MAX_RECONNECTS)")

	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres connection string; empty disables the timelapse log (env: RFMAP_DATABASE_URL)")
	fs.DurationVar(&cfg.dedupWindow, "dedup-window", 5*time.Minute, "window within which repeated control transitions are treated as upstream re-sends (env: RFMAP_DEDUP_WINDOW)")
	fs.IntVar(&cfg.retentionDays, "retention-days", 30, "days of timelapse events and baselines to retain (env: RFMAP_RETENTION_DAYS)")

	fs.StringVar(&cfg.corsOrigin, "cors-origin", "*", "value for the Access-Control-Allow-Origin header (env: RFMAP_CORS_ORIGIN)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "public map URL encoded into the share QR code (env: RFMAP_PUBLIC_URL)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("rfmap v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
