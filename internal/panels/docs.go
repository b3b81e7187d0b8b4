package panels

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dwizi/edge-console/internal/adminclient"
)

type HelpSection struct {
	Title string
	Lines []string
}

// Help is the static support panel.
func Help() []HelpSection {
	return []HelpSection{
		{Title: "Navigation", Lines: []string{
			"tab / shift+tab  switch panel",
			"up / down        move between resources",
			"ctrl+r           re-check access on the login screen",
		}},
		{Title: "Editing", Lines: []string{
			"e  edit the selected resource",
			"a  add a resource of the current kind",
			"d  delete the selected resource (asks first)",
			"y  show the YAML that save would submit",
			"s  cycle the sort order",
			"ctrl+s save, esc cancel",
		}},
		{Title: "Support", Lines: []string{
			"Resources annotated getambassador.io/editable: \"false\" are managed elsewhere and open read only.",
			"Changes apply through the admin API and show up with the next snapshot.",
			"Logs are written to the file named by EDGE_CONSOLE_LOG_FILE.",
		}},
	}
}

type OpenAPISource interface {
	OpenAPIServices(ctx context.Context) ([]adminclient.OpenAPIService, error)
	OpenAPIDocument(ctx context.Context, namespace, name string) (json.RawMessage, error)
}

type APIDoc struct {
	Namespace string
	Name      string
	Prefix    string
	HasDoc    bool
}

// APIDocs lists the services that publish API documentation.
func APIDocs(ctx context.Context, source OpenAPISource) ([]APIDoc, error) {
	services, err := source.OpenAPIServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list api docs: %w", err)
	}
	out := make([]APIDoc, 0, len(services))
	for _, service := range services {
		out = append(out, APIDoc{
			Namespace: service.ServiceNamespace,
			Name:      service.ServiceName,
			Prefix:    service.RoutingPrefix,
			HasDoc:    service.HasDoc,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type APIDocSummary struct {
	Title      string
	Version    string
	Operations []string
}

// SummarizeAPIDoc reads the title, version and operations of an OpenAPI
// document.
func SummarizeAPIDoc(doc json.RawMessage) APIDocSummary {
	root := gjson.ParseBytes(doc)
	summary := APIDocSummary{
		Title:   root.Get("info.title").String(),
		Version: root.Get("info.version").String(),
	}
	root.Get("paths").ForEach(func(path, methods gjson.Result) bool {
		methods.ForEach(func(method, _ gjson.Result) bool {
			summary.Operations = append(summary.Operations, fmt.Sprintf("%-6s %s", strings.ToUpper(method.String()), path.String()))
			return true
		})
		return true
	})
	sort.Strings(summary.Operations)
	return summary
}
