package panels

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dwizi/edge-console/internal/lookup"
	"github.com/dwizi/edge-console/internal/resource"
	"github.com/dwizi/edge-console/internal/snapshot"
)

// DefaultACMEAuthority is offered when a Host is first added.
const DefaultACMEAuthority = "https://acme-v02.api.letsencrypt.org/directory"

const (
	HostFieldHostname = "hostname"
	HostFieldUseACME  = "use_acme"
	HostFieldProvider = "provider"
	HostFieldEmail    = "email"
	HostFieldTOSAgree = "tos_agree"
	// HostFieldShowTOS is set once the operator changes the provider; the
	// terms of service must then be agreed to again.
	HostFieldShowTOS = "show_tos"

	opTOSURL        = "tos-url"
	opHostQualifies = "host-qualifies"
)

var (
	emailFormat   = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(.\w{2,3})+$`)
	domainMatcher = regexp.MustCompile(`//([^/]*)/`)
)

type HostCapability struct {
	// DefaultHostname seeds new Hosts; the console uses the backend's host.
	DefaultHostname string
}

func (HostCapability) Kind() snapshot.Kind { return snapshot.KindHost }

func (HostCapability) Fields(spec snapshot.HostSpec) []resource.Field {
	authority := snapshot.ACMEAuthorityNone
	email := ""
	if spec.AcmeProvider != nil {
		if spec.AcmeProvider.Authority != "" {
			authority = spec.AcmeProvider.Authority
		}
		email = spec.AcmeProvider.Email
	}
	return []resource.Field{
		{Name: HostFieldHostname, Label: "hostname", Value: spec.Hostname},
		{Name: HostFieldUseACME, Label: "use ACME to manage TLS", Value: strconv.FormatBool(spec.UsesACME()), Kind: resource.FieldBool},
		{Name: HostFieldProvider, Label: "acme provider", Value: authority},
		{Name: HostFieldEmail, Label: "email", Value: email},
		{Name: HostFieldTOSAgree, Label: "agree to terms of service", Value: "false", Kind: resource.FieldBool},
		{Name: HostFieldShowTOS, Value: "false", Kind: resource.FieldBool, Hidden: true},
	}
}

func (HostCapability) Extract(in resource.Values) (snapshot.HostSpec, error) {
	spec := snapshot.HostSpec{Hostname: strings.TrimSpace(in.Get(HostFieldHostname))}
	if in.Bool(HostFieldUseACME) {
		spec.AcmeProvider = &snapshot.ACMEProvider{
			Authority: strings.TrimSpace(in.Get(HostFieldProvider)),
			Email:     strings.TrimSpace(in.Get(HostFieldEmail)),
		}
	} else {
		spec.AcmeProvider = &snapshot.ACMEProvider{Authority: snapshot.ACMEAuthorityNone}
	}
	return spec, nil
}

func (HostCapability) Validate(draft resource.Draft[snapshot.HostSpec]) []string {
	if !draft.Inputs.Bool(HostFieldUseACME) {
		return nil
	}
	var messages []string
	if TOSShowing(draft.Mode, draft.Inputs) && !draft.Inputs.Bool(HostFieldTOSAgree) {
		messages = append(messages, "You must agree to terms of service")
	}
	if !emailFormat.MatchString(draft.Inputs.Get(HostFieldEmail)) {
		messages = append(messages, "That doesn't look like a valid email address")
	}
	return messages
}

func (HostCapability) Summary(obj snapshot.Object[snapshot.HostSpec]) []string {
	authority := snapshot.ACMEAuthorityNone
	email := ""
	if obj.Spec.AcmeProvider != nil {
		authority = obj.Spec.AcmeProvider.Authority
		email = obj.Spec.AcmeProvider.Email
	}
	lines := []string{
		"hostname: " + obj.Spec.Hostname,
		"acme provider: " + authority,
	}
	if email != "" {
		lines = append(lines, "email: "+email)
	}
	return append(lines, "status: "+HostState(obj.Resource))
}

func (c HostCapability) Seed() (string, snapshot.HostSpec) {
	return c.DefaultHostname, snapshot.HostSpec{
		Hostname:     c.DefaultHostname,
		AcmeProvider: &snapshot.ACMEProvider{Authority: DefaultACMEAuthority},
	}
}

func (HostCapability) SortFields() []resource.SortField {
	return []resource.SortField{
		{Value: "name", Label: "Name"},
		{Value: "namespace", Label: "Namespace"},
		{Value: "hostname", Label: "Hostname"},
	}
}

func (HostCapability) SortKey(field string, obj snapshot.Object[snapshot.HostSpec]) string {
	switch field {
	case "namespace":
		return obj.Resource.Namespace()
	case "hostname":
		return obj.Spec.Hostname
	default:
		return obj.Resource.Name()
	}
}

// TOSShowing reports whether the terms of service checkbox is in play: on
// a new Host, or after the provider changed, and only when ACME is used.
func TOSShowing(mode resource.Mode, in resource.Values) bool {
	return (in.Bool(HostFieldShowTOS) || mode == resource.ModeAdd) && in.Bool(HostFieldUseACME)
}

// HostState renders a Host's status, with the reason when it is in error.
func HostState(res snapshot.Resource) string {
	state := res.StatusField("state")
	if state == "" {
		return "<none>"
	}
	if state == "Error" {
		return fmt.Sprintf("%s (%s)", state, res.StatusField("reason"))
	}
	return state
}

type HostLookups interface {
	TermsOfServiceURL(ctx context.Context, caURL string) (string, error)
	HostQualifies(ctx context.Context, hostname string) (bool, error)
}

type TermsOfService struct {
	URL    string
	Domain string
}

// Hosts is the Host panel: the editor set plus the lookups its form
// triggers. Each lookup replaces the previous one for the same editor.
type Hosts struct {
	Set *resource.Set[snapshot.HostSpec]

	lookups HostLookups
	tracker *lookup.Tracker
}

func NewHosts(defaultHostname string, lookups HostLookups, tracker *lookup.Tracker) *Hosts {
	if tracker == nil {
		tracker = lookup.NewTracker()
	}
	return &Hosts{
		Set:     resource.NewSet[snapshot.HostSpec](HostCapability{DefaultHostname: defaultHostname}).OpenAddIfNone(),
		lookups: lookups,
		tracker: tracker,
	}
}

// ProviderChanged records an operator edit of the provider and fetches the
// new provider's terms of service.
func (h *Hosts) ProviderChanged(ctx context.Context, view resource.View, provider string) (TermsOfService, error) {
	view.SetInput(HostFieldProvider, provider)
	view.SetInput(HostFieldShowTOS, "true")
	return h.TermsOfService(ctx, view.Key(), provider)
}

func (h *Hosts) TermsOfService(ctx context.Context, viewKey, provider string) (TermsOfService, error) {
	return lookup.Do(h.tracker, ctx, opTOSURL+":"+viewKey, func(ctx context.Context) (TermsOfService, error) {
		url, err := h.lookups.TermsOfServiceURL(ctx, provider)
		if err != nil {
			return TermsOfService{}, err
		}
		return TermsOfService{URL: url, Domain: TOSDomain(url)}, nil
	})
}

// HostnameChanged asks whether the hostname can use ACME and updates the
// form's ACME toggle. A Host whose confirmed spec opted out of ACME stays
// opted out.
func (h *Hosts) HostnameChanged(ctx context.Context, view resource.View, hostname string) (bool, error) {
	view.SetInput(HostFieldHostname, hostname)
	qualifies, err := lookup.Do(h.tracker, ctx, opHostQualifies+":"+view.Key(), func(ctx context.Context) (bool, error) {
		return h.lookups.HostQualifies(ctx, hostname)
	})
	if err != nil {
		return false, err
	}
	ApplyQualification(view, qualifies)
	return qualifies, nil
}

func ApplyQualification(view resource.View, qualifies bool) {
	confirmed := view.Resource()
	obj, err := snapshot.Decode[snapshot.HostSpec](confirmed)
	if err == nil && obj.Spec.AcmeProvider != nil && obj.Spec.AcmeProvider.Authority == snapshot.ACMEAuthorityNone {
		view.SetInput(HostFieldUseACME, "false")
		return
	}
	view.SetInput(HostFieldUseACME, strconv.FormatBool(qualifies))
}

// TOSDomain extracts the host of a terms of service URL for display.
func TOSDomain(url string) string {
	if match := domainMatcher.FindStringSubmatch(url); match != nil {
		return match[1]
	}
	return url
}
