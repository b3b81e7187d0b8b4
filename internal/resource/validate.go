package resource

import (
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	msgBadName      = "Name must be {a-z0-9-.}, length <= 253"
	msgBadNamespace = "Namespace must be {a-z0-9-.}, length <= 253"
)

// ValidateIdentity checks the name and namespace inputs as DNS-1123
// subdomains, which is what the backend accepts for either.
func ValidateIdentity(inputs Values) []string {
	var messages []string
	if len(validation.IsDNS1123Subdomain(inputs.Get(InputName))) > 0 {
		messages = append(messages, msgBadName)
	}
	if len(validation.IsDNS1123Subdomain(inputs.Get(InputNamespace))) > 0 {
		messages = append(messages, msgBadNamespace)
	}
	return messages
}
