package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/backup"
	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
	"github.com/djinoz/nostr-event-backup-to-relay/pkg/relay"
)

func run(ctx context.Context, opts Options) error {
	logger.SetDebug(opts.Verbose)
	cfg := opts.Config

	// Validation happens before any network activity.
	author, err := DecodeAuthor(opts.Npub)
	if err != nil {
		return err
	}
	if cfg.TargetRelay == "" {
		return fmt.Errorf("target relay is required")
	}

	target := relay.NormalizeURL(cfg.TargetRelay)
	sources := make([]string, 0, len(cfg.SourceRelays))
	for _, s := range cfg.SourceRelays {
		sources = append(sources, relay.NormalizeURL(s))
	}

	since := opts.Since
	if opts.Days > 0 {
		since = time.Now().Add(-time.Duration(opts.Days) * 24 * time.Hour).Unix()
	}

	if ctx == nil {
		ctx = context.Background()
	}

	pool := relay.NewPool(ctx, relay.PoolConfig{
		SOCKSHost:    cfg.SOCKS.Host,
		SOCKSPort:    cfg.SOCKS.Port,
		ProbeTimeout: cfg.SOCKS.ProbeTimeout(),
		QueryTimeout: cfg.QueryTimeout(),
		OnionTimeout: cfg.OnionTimeout(),
	})

	engine := backup.NewEngine(pool)
	plan, err := engine.Plan(ctx, backup.Options{
		Author:  author,
		Kinds:   cfg.Kinds,
		Since:   since,
		Until:   opts.Until,
		Limit:   opts.Limit,
		Target:  target,
		Sources: sources,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Target already holds %d event(s); %d candidate(s) fetched; %d to publish\n",
		plan.Existing, plan.Candidates, len(plan.New))

	if opts.DryRun {
		for _, ev := range plan.New {
			fmt.Printf("  would publish %s  kind=%d  %s\n",
				ev.ID, ev.Kind, ev.CreatedAt.Time().Format(time.RFC3339))
		}
		fmt.Println("Dry run, nothing published.")
		return nil
	}

	if len(plan.New) == 0 {
		fmt.Println("Target is up to date, nothing to publish.")
		return nil
	}

	publisher := backup.NewPublisher(pool, cfg.BatchSize, cfg.BatchDelay(), cfg.PublishTimeout())
	report := publisher.Run(ctx, target, plan.New)

	fmt.Printf("Published %d/%d event(s) (%.0f%% success)\n",
		report.Published, report.Total(), report.SuccessRate()*100)
	for _, o := range report.Outcomes {
		if o.Accepted() {
			continue
		}
		fmt.Printf("  failed %s: %s (%s)\n", o.EventID, o.Status, o.Detail)
	}
	return nil
}
