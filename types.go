package parsera

import (
	"sort"

	"github.com/go-playground/validator/v10"
)

// Shared validator instance for request validation.
var validate = validator.New()

// Attribute names one field to extract and describes it for the remote
// service.
type Attribute struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// AttributesFromMap converts a name→description mapping into an attribute
// list. Go maps carry no insertion order, so keys are sorted to keep the
// resulting list deterministic.
func AttributesFromMap(m map[string]string) []Attribute {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]Attribute, 0, len(m))
	for _, name := range names {
		attrs = append(attrs, Attribute{Name: name, Description: m[name]})
	}
	return attrs
}

// Cookie is forwarded to the remote service for fetching the target page.
// The sameSite attribute is required and must be one of None, Lax or Strict;
// all other attributes are carried through unchanged.
type Cookie map[string]string

func (ck Cookie) validate() error {
	if err := validate.Var(ck["sameSite"], "required,oneof=None Lax Strict"); err != nil {
		return newError(KindInvalidInput, `cookie sameSite must be one of "None", "Lax" or "Strict"`)
	}
	return nil
}

// ExtractRequest describes one logical extraction.
type ExtractRequest struct {
	// URL of the page to extract from. Must be an absolute http(s) URL.
	URL string `validate:"required,http_url"`
	// Attributes to extract, in order.
	Attributes []Attribute `validate:"required,min=1,dive"`
	// ProxyCountry overrides the client's default egress country.
	ProxyCountry string
	// Cookies sent with the page fetch.
	Cookies []Cookie
	// Precision selects the service's higher-cost extraction mode.
	Precision bool
}

// requestBody is the wire shape of an extraction request. It is built once
// per logical extraction and reused verbatim across retries.
type requestBody struct {
	URL          string      `json:"url"`
	Attributes   []Attribute `json:"attributes"`
	ProxyCountry string      `json:"proxy_country,omitempty"`
	Cookies      []Cookie    `json:"cookies,omitempty"`
	Mode         string      `json:"mode,omitempty"` // omitted means standard
}

// ExtractResponse is the full payload of a successful extraction. It is
// delivered to extract:complete subscribers; Extract itself returns only the
// data collection.
type ExtractResponse struct {
	Data    []map[string]string `json:"data"`
	Message string              `json:"message,omitempty"`
}

// errorResponse is the wire shape of an error payload.
type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
