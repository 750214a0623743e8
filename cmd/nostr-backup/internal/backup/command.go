// Package backup implements the root nostr-backup command: plan which events
// the target relay is missing, then publish them in batches.
package backup

import (
	"github.com/spf13/cobra"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/config"
)

// Options collects everything the run needs after flag/config merging.
type Options struct {
	Npub      string
	Target    string
	Sources   []string
	Kinds     []int
	Since     int64
	Until     int64
	Days      int
	Limit     int
	DryRun    bool
	Verbose   bool
	SocksHost string
	SocksPort int

	Config *config.Config
}

func NewBackupCommand() *cobra.Command {
	var (
		opts       Options
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "nostr-backup",
		Short: "Back up a pubkey's nostr events to a target relay",
		Long: "nostr-backup fetches a pubkey's events from source relays and republishes\n" +
			"the ones missing from the target relay. Clearnet relays are queried through\n" +
			"a pooled client; .onion relays are reached through a Tor SOCKS5 proxy.",
		Example: `  nostr-backup --npub npub1... --target wss://backup.example.com
  nostr-backup --npub npub1... --target wss://backup.example.com \
      --source wss://relay.damus.io --source wss://nos.lol --days 30 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd, cfg, &opts)
			opts.Config = cfg
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.Npub, "npub", "n", "", "Pubkey to back up (npub or hex)")
	flags.StringVarP(&opts.Target, "target", "t", "", "Target relay URL")
	flags.StringSliceVarP(&opts.Sources, "source", "s", nil, "Source relay URL (repeatable)")
	flags.IntSliceVarP(&opts.Kinds, "kinds", "k", nil, "Event kinds to back up")
	flags.Int64Var(&opts.Since, "since", 0, "Only events created at or after this unix timestamp")
	flags.Int64Var(&opts.Until, "until", 0, "Only events created at or before this unix timestamp")
	flags.IntVar(&opts.Days, "days", 0, "Only events from the last N days (shorthand for --since)")
	flags.IntVar(&opts.Limit, "limit", 0, "Per-relay query result cap (0 = relay default)")
	flags.Int("batch-size", 0, "Events published concurrently per batch")
	flags.Int("batch-delay", 0, "Pause between batches in milliseconds")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Compute and print the plan without publishing")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.SocksHost, "socks-host", "", "SOCKS5 proxy host for .onion relays")
	flags.IntVar(&opts.SocksPort, "socks-port", 0, "SOCKS5 proxy port for .onion relays")
	flags.StringVar(&configPath, "config", config.DefaultPath(), "Config file path")

	cmd.MarkFlagRequired("npub")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagsMutuallyExclusive("since", "days")

	return cmd
}

// applyFlagOverrides folds explicitly-set flags over the file/env config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, opts *Options) {
	flags := cmd.Flags()

	if flags.Changed("kinds") {
		cfg.Kinds = opts.Kinds
	}
	if flags.Changed("batch-size") {
		cfg.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("batch-delay") {
		cfg.BatchDelayMS, _ = flags.GetInt("batch-delay")
	}
	if flags.Changed("socks-host") {
		cfg.SOCKS.Host = opts.SocksHost
	}
	if flags.Changed("socks-port") {
		cfg.SOCKS.Port = opts.SocksPort
	}
	if flags.Changed("target") {
		cfg.TargetRelay = opts.Target
	}
	if flags.Changed("source") {
		cfg.SourceRelays = opts.Sources
	}
}
