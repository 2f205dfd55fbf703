package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Keda87/simple-banking-api/internal/shared"
)

// AuditLister reads stored transaction logs.
type AuditLister interface {
	List(ctx context.Context, limit int) ([]shared.AuditLog, error)
}

// AuditSource opens a lister for one command run. The returned func releases it.
type AuditSource func(ctx context.Context) (AuditLister, func(), error)

// NewAuditCommand builds `audit [--limit N]`, which prints the newest
// transaction logs first.
func NewAuditCommand(open AuditSource) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print recent transaction logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 || limit > shared.MaxAuditListLimit {
				return fmt.Errorf("audit: --limit must be between 1 and %d", shared.MaxAuditListLimit)
			}
			if open == nil {
				return errors.New("audit: source not configured")
			}
			logs, release, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			entries, err := logs.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("audit: list: %w", err)
			}
			return WriteAuditLogs(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", shared.DefaultAuditListLimit, "number of entries to print")
	return cmd
}

// WriteAuditLogs renders entries as tab-aligned rows: time, actor, message, metadata.
func WriteAuditLogs(w io.Writer, entries []shared.AuditLog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, entry := range entries {
		meta := []byte("{}")
		if len(entry.Metadata) > 0 {
			var err error
			if meta, err = json.Marshal(entry.Metadata); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			entry.At.UTC().Format(time.RFC3339), entry.Actor, entry.Message, meta); err != nil {
			return err
		}
	}
	return tw.Flush()
}
