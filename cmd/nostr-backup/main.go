// nostr-backup copies a pubkey's events from a set of source relays to a
// target relay, publishing only the events the target is missing. Clearnet
// relays go through a pooled client; .onion relays go through a Tor SOCKS
// proxy.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/djinoz/nostr-event-backup-to-relay/cmd/nostr-backup/internal/backup"
	"github.com/djinoz/nostr-event-backup-to-relay/cmd/nostr-backup/internal/version"
)

func NewBackupCommand() *cobra.Command {
	cmd := backup.NewBackupCommand()
	cmd.AddCommand(version.NewVersionCommand())
	return cmd
}

func main() {
	cmd := NewBackupCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
