package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"sigs.k8s.io/yaml"

	"github.com/dwizi/edge-console/internal/adminclient"
	"github.com/dwizi/edge-console/internal/store"
)

// AuditedClient forwards mutations to the backend and records each one in
// the local activity log. Recording failures are logged and never change
// the mutation's result.
type AuditedClient struct {
	client *adminclient.Client
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditedClient(client *adminclient.Client, sqlStore *store.Store, logger *slog.Logger) *AuditedClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditedClient{client: client, store: sqlStore, logger: logger, now: time.Now}
}

func (a *AuditedClient) Apply(ctx context.Context, manifest []byte) (string, error) {
	started := a.now()
	output, err := a.client.Apply(ctx, manifest)
	kind, namespace, name := manifestIdentity(manifest)
	a.record(ctx, store.RecordActivityInput{
		Action:       store.ActionApply,
		ResourceKind: kind,
		Namespace:    namespace,
		Name:         name,
		Err:          err,
		Detail:       strings.TrimSpace(output),
		Duration:     a.now().Sub(started),
	})
	return output, err
}

func (a *AuditedClient) Delete(ctx context.Context, namespace string, names []string) error {
	started := a.now()
	err := a.client.Delete(ctx, namespace, names)
	elapsed := a.now().Sub(started)
	for _, ref := range names {
		kind, name, _ := strings.Cut(ref, "/")
		a.record(ctx, store.RecordActivityInput{
			Action:       store.ActionDelete,
			ResourceKind: kind,
			Namespace:    namespace,
			Name:         name,
			Err:          err,
			Duration:     elapsed,
		})
	}
	return err
}

func (a *AuditedClient) SetLogLevel(ctx context.Context, level string) error {
	started := a.now()
	err := a.client.SetLogLevel(ctx, level)
	a.record(ctx, store.RecordActivityInput{
		Action:   store.ActionLogLevel,
		Detail:   level,
		Err:      err,
		Duration: a.now().Sub(started),
	})
	return err
}

func (a *AuditedClient) BootstrapHost(ctx context.Context, hostname, authority, email string) (string, error) {
	started := a.now()
	output, err := a.client.BootstrapHost(ctx, hostname, authority, email)
	a.record(ctx, store.RecordActivityInput{
		Action:       store.ActionBootstrap,
		ResourceKind: "Host",
		Name:         hostname,
		Detail:       authority,
		Err:          err,
		Duration:     a.now().Sub(started),
	})
	return output, err
}

func (a *AuditedClient) record(ctx context.Context, input store.RecordActivityInput) {
	if a.store == nil {
		return
	}
	// The mutation context may already be cancelled; the record still
	// belongs in the log.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if _, err := a.store.RecordActivity(recordCtx, input); err != nil {
		a.logger.Error("record activity failed", "action", input.Action, "error", err)
	}
}

// manifestIdentity reads kind, namespace and name from a single YAML
// document. Unreadable manifests yield empty strings.
func manifestIdentity(manifest []byte) (kind, namespace, name string) {
	doc, err := yaml.YAMLToJSON(manifest)
	if err != nil || !gjson.ValidBytes(doc) {
		return "", "", ""
	}
	values := gjson.GetManyBytes(doc, "kind", "metadata.namespace", "metadata.name")
	return values[0].String(), values[1].String(), values[2].String()
}
