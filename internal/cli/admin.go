package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/auth"
	"github.com/dwizi/edge-console/internal/consoleerr"
	"github.com/dwizi/edge-console/internal/panels"
	"github.com/dwizi/edge-console/internal/snapshot"
	"github.com/dwizi/edge-console/internal/store"
)

func newAuthCommand(flags *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Inspect admin API access",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Probe the admin API with the configured token",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, tokens, cfg, err := flags.openClient()
			if err != nil {
				return err
			}
			token := tokens.Token()
			if token == "" {
				cmd.Println("Token: none configured")
			} else if claims, err := auth.Inspect(token); err != nil {
				cmd.Printf("Token: opaque (%v)\n", err)
			} else {
				printClaims(cmd, claims, time.Now())
			}

			ctx, cancel := requestContext(cmd, cfg)
			defer cancel()
			result := auth.NewGate(client).Check(ctx)
			cmd.Printf("Access: %s\n", result.State)
			if result.Detail != "" {
				cmd.Printf("Detail: %s\n", result.Detail)
			}
			if result.State != auth.StateAuthorized {
				return fmt.Errorf("admin api at %s: %w", cfg.BaseURL, consoleerr.ErrUnauthorized)
			}
			return nil
		},
	})
	return cmd
}

func printClaims(cmd *cobra.Command, claims auth.Claims, now time.Time) {
	cmd.Printf("Subject: %s\n", fallback(claims.Subject, "-"))
	if claims.Issuer != "" {
		cmd.Printf("Issuer: %s\n", claims.Issuer)
	}
	if len(claims.Audience) > 0 {
		cmd.Printf("Audience: %s\n", strings.Join(claims.Audience, ", "))
	}
	if !claims.ExpiresAt.IsZero() {
		state := "valid"
		if claims.Expired(now) {
			state = "expired"
		}
		cmd.Printf("Expires: %s (%s)\n", claims.ExpiresAt.UTC().Format(time.RFC3339), state)
	}
}

func newLogLevelCommand(logger *slog.Logger, flags *globals) *cobra.Command {
	return &cobra.Command{
		Use:       "log-level LEVEL",
		Short:     "Switch the gateway log level",
		Args:      cobra.ExactArgs(1),
		ValidArgs: panels.LogLevels,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := flags.openBackend(logger)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := requestContext(cmd, b.cfg)
			defer cancel()
			if err := panels.SetLogLevel(ctx, b.mutator, args[0]); err != nil {
				return err
			}
			cmd.Printf("Gateway log level: %s\n", strings.ToLower(args[0]))
			return nil
		},
	}
}

func newClusterIDCommand(flags *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "cluster-id",
		Short: "Print the gateway cluster id",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, cfg, err := flags.openClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, cfg)
			defer cancel()
			id, err := client.ClusterID(ctx)
			if err != nil {
				return err
			}
			cmd.Println(id)
			return nil
		},
	}
}

func newHostsCommand(logger *slog.Logger, flags *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Host bootstrap helpers",
	}
	cmd.AddCommand(newHostsBootstrapCommand(logger, flags))
	return cmd
}

func newHostsBootstrapCommand(logger *slog.Logger, flags *globals) *cobra.Command {
	var (
		hostname  string
		authority string
		email     string
		wait      time.Duration
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create a Host through the backend and wait until it settles",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := flags.openBackend(logger)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := requestContext(cmd, b.cfg)
			output, err := b.mutator.BootstrapHost(ctx, hostname, authority, email)
			cancel()
			if err != nil {
				return err
			}
			if output = strings.TrimSpace(output); output != "" {
				cmd.Println(output)
			}
			if wait <= 0 {
				return nil
			}

			waitCtx, stop := context.WithTimeout(cmd.Context(), wait)
			defer stop()
			status, err := waitForHost(waitCtx, b.client, hostname, interval, func(status adminclient.HostStatus) {
				cmd.Printf("%s: %s %s\n", status.Hostname, fallback(status.State, "pending"), status.PhasePending)
			})
			if err != nil {
				return err
			}
			if status.State == "Error" {
				return fmt.Errorf("host %s failed: %s", hostname, status.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hostname, "hostname", "", "hostname to serve")
	cmd.Flags().StringVar(&authority, "acme-authority", panels.DefaultACMEAuthority, "ACME directory url, or none")
	cmd.Flags().StringVar(&email, "acme-email", "", "contact email for the ACME account")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for the host to settle, 0 to return at once")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "status poll interval")
	_ = cmd.MarkFlagRequired("hostname")
	return cmd
}

type hostStatusSource interface {
	HostStatus(ctx context.Context, hostname string) (adminclient.HostStatus, error)
}

// waitForHost polls the host status until it is terminal, reporting each
// change of state.
func waitForHost(ctx context.Context, source hostStatusSource, hostname string, interval time.Duration, report func(adminclient.HostStatus)) (adminclient.HostStatus, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last adminclient.HostStatus
	for {
		status, err := source.HostStatus(ctx, hostname)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return last, fmt.Errorf("wait for host %s: %w", hostname, ctx.Err())
			}
		case status != last:
			report(status)
			last = status
		}
		if err == nil && status.Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("wait for host %s: %w", hostname, ctx.Err())
		case <-ticker.C:
		}
	}
}

func newOpenAPICommand(flags *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Browse the API documents services publish",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List services with API documentation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, cfg, err := flags.openClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, cfg)
			defer cancel()
			docs, err := panels.APIDocs(ctx, client)
			if err != nil {
				return err
			}
			for _, doc := range docs {
				marker := "-"
				if doc.HasDoc {
					marker = "doc"
				}
				cmd.Printf("%-20s %-28s %-24s %s\n", doc.Namespace, doc.Name, doc.Prefix, marker)
			}
			return nil
		},
	})

	var summary bool
	get := &cobra.Command{
		Use:   "get NAMESPACE/NAME",
		Short: "Print a service's API document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, name, ok := strings.Cut(args[0], "/")
			if !ok || namespace == "" || name == "" {
				return fmt.Errorf("%q is not NAMESPACE/NAME", args[0])
			}
			client, _, cfg, err := flags.openClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, cfg)
			defer cancel()
			raw, err := client.OpenAPIDocument(ctx, namespace, name)
			if err != nil {
				return err
			}
			if summary {
				doc := panels.SummarizeAPIDoc(raw)
				cmd.Printf("%s %s\n", fallback(doc.Title, name), doc.Version)
				for _, operation := range doc.Operations {
					cmd.Println("  " + operation)
				}
				return nil
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return fmt.Errorf("format api document: %w", err)
			}
			cmd.Println(pretty.String())
			return nil
		},
	}
	get.Flags().BoolVar(&summary, "summary", false, "print title, version and operations only")
	cmd.AddCommand(get)
	return cmd
}

func newHistoryCommand(flags *globals) *cobra.Command {
	var (
		limit      int
		activity   bool
		errorsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded snapshots, or console activity with --activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlStore, err := openStore(flags.config())
			if err != nil {
				return err
			}
			defer sqlStore.Close()

			if activity {
				events, err := sqlStore.ListActivity(cmd.Context(), store.ListActivityInput{Limit: limit, ErrorsOnly: errorsOnly})
				if err != nil {
					return err
				}
				for _, event := range events {
					cmd.Printf("%s  %-14s %-8s %s\n", event.CreatedAt.Local().Format("2006-01-02 15:04:05"), event.Action, event.Outcome, activityTarget(event))
				}
				return nil
			}

			records, err := sqlStore.ListSnapshots(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, record := range records {
				cmd.Printf("%s  %s  %4d resources  %s\n",
					record.FetchedAt.Local().Format("2006-01-02 15:04:05"),
					shortFingerprint(record.Fingerprint),
					record.ResourceCount,
					kindCounts(record.Kinds),
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	cmd.Flags().BoolVar(&activity, "activity", false, "show console activity instead of snapshots")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "with --activity, only failed actions")
	return cmd
}

func activityTarget(event store.ActivityEvent) string {
	if event.Name == "" {
		return fallback(event.ResourceKind, event.Detail)
	}
	return fmt.Sprintf("%s %s/%s", event.ResourceKind, fallback(event.Namespace, snapshot.DefaultNamespace), event.Name)
}

func kindCounts(kinds map[string]int) string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, kinds[name]))
	}
	return strings.Join(parts, " ")
}

func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}

func fallback(value, otherwise string) string {
	if strings.TrimSpace(value) == "" {
		return otherwise
	}
	return value
}
