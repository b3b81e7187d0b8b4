package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dwizi/edge-console/internal/snapshot"
)

func newSnapshotCommand(flags *globals) *cobra.Command {
	var (
		asJSON bool
		kind   string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Fetch one configuration snapshot and print what it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, cfg, err := flags.openClient()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, cfg)
			defer cancel()

			snap, err := client.Snapshot(ctx, uuid.NewString())
			if err != nil {
				return err
			}
			if asJSON {
				return writeSnapshotJSON(cmd.OutOrStdout(), snap, snapshot.Kind(kind))
			}
			printSnapshot(cmd, snap, snapshot.Kind(kind))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resources as JSON")
	cmd.Flags().StringVar(&kind, "kind", "", "only this kind, listing each resource")
	return cmd
}

func printSnapshot(cmd *cobra.Command, snap *snapshot.Snapshot, kind snapshot.Kind) {
	if kind != "" {
		resources := snap.Resources(kind)
		cmd.Printf("%d %s\n", len(resources), kind)
		for _, res := range resources {
			line := fmt.Sprintf("  %-32s %s", res.Name(), res.Namespace())
			if res.ReadOnly() {
				line += "  read-only"
			}
			cmd.Println(line)
		}
		return
	}

	cmd.Printf("Fetched: %s\n", snap.FetchedAt.Local().Format("2006-01-02 15:04:05"))
	if snap.Diag != nil && snap.Diag.System.Version != "" {
		cmd.Printf("Gateway: %s\n", snap.Diag.System.Version)
	}
	for _, k := range snap.Kinds() {
		cmd.Printf("  %-28s %d\n", k, len(snap.Resources(k)))
	}
	cmd.Printf("Total: %d\n", snap.Count())
}

func writeSnapshotJSON(w io.Writer, snap *snapshot.Snapshot, kind snapshot.Kind) error {
	out := map[snapshot.Kind][]json.RawMessage{}
	for _, k := range snap.Kinds() {
		if kind != "" && k != kind {
			continue
		}
		for _, res := range snap.Resources(k) {
			out[k] = append(out[k], res.Raw)
		}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func newApplyCommand(logger *slog.Logger, flags *globals) *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply resources from a YAML file, one document at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readManifest(cmd, file)
			if err != nil {
				return err
			}
			docs, err := splitManifests(data)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("%s holds no documents", file)
			}
			if dryRun {
				for _, doc := range docs {
					cmd.Print("---\n" + string(doc))
				}
				return nil
			}

			b, err := flags.openBackend(logger)
			if err != nil {
				return err
			}
			defer b.Close()

			var failed error
			for _, doc := range docs {
				ctx, cancel := requestContext(cmd, b.cfg)
				output, err := b.mutator.Apply(ctx, doc)
				cancel()
				if err != nil {
					failed = errors.Join(failed, err)
					cmd.PrintErrf("apply failed: %v\n", err)
					continue
				}
				if output = strings.TrimSpace(output); output != "" {
					cmd.Println(output)
				}
			}
			return failed
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "YAML file to apply, - for stdin")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the documents that would be applied")
	_ = cmd.MarkFlagRequired("filename")
	return cmd
}

func readManifest(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}

// splitManifests breaks a multi-document YAML stream into single documents,
// dropping empty ones.
func splitManifests(data []byte) ([][]byte, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var docs [][]byte
	for index := 0; ; index++ {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode document %d: %w", index+1, err)
		}
		if len(doc) == 0 {
			continue
		}
		if kind, _ := doc["kind"].(string); kind == "" {
			return nil, fmt.Errorf("document %d has no kind", index+1)
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", index+1, err)
		}
		docs = append(docs, out)
	}
}

func newDeleteCommand(logger *slog.Logger, flags *globals) *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "delete KIND/NAME...",
		Short: "Delete resources by Kind/name within one namespace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := make([]string, 0, len(args))
			for _, arg := range args {
				ref, err := parseRef(arg)
				if err != nil {
					return err
				}
				refs = append(refs, ref)
			}

			b, err := flags.openBackend(logger)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := requestContext(cmd, b.cfg)
			defer cancel()
			if err := b.mutator.Delete(ctx, namespace, refs); err != nil {
				return err
			}
			cmd.Printf("Deleted from %s: %s\n", namespace, strings.Join(refs, ", "))
			return nil
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", snapshot.DefaultNamespace, "namespace of the resources")
	return cmd
}

// parseRef normalizes KIND/NAME, matching the kind case-insensitively
// against the kinds the backend knows.
func parseRef(arg string) (string, error) {
	kindText, name, ok := strings.Cut(strings.TrimSpace(arg), "/")
	if !ok || kindText == "" || name == "" {
		return "", fmt.Errorf("%q is not KIND/NAME", arg)
	}
	for _, kind := range knownKinds() {
		if strings.EqualFold(string(kind), kindText) {
			return string(kind) + "/" + name, nil
		}
	}
	return "", fmt.Errorf("unknown kind %q", kindText)
}

func knownKinds() []snapshot.Kind {
	kinds := []snapshot.Kind{
		snapshot.KindHost,
		snapshot.KindMapping,
		snapshot.KindTCPMapping,
		snapshot.KindRateLimit,
		snapshot.KindRateLimitService,
		snapshot.KindFilter,
		snapshot.KindFilterPolicy,
		snapshot.KindModule,
		snapshot.KindAuthService,
		snapshot.KindTracingService,
		snapshot.KindLogService,
		snapshot.KindDevPortal,
	}
	kinds = append(kinds, snapshot.ResolverKinds()...)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
