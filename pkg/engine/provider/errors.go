package provider

import "fmt"

// ProviderError wraps a network or upstream-rejection failure, carrying
// the provider's own detail string (capped, never raw-dumped past what
// the caller needs).
type ProviderError struct {
	Provider string
	Detail   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider_error[%s]: %s", e.Provider, e.Detail)
}

// ResponseParseError means the upstream body could not be parsed as the
// shape the provider's protocol promises.
type ResponseParseError struct {
	Provider string
	Detail   string
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("response_parse_error[%s]: %s", e.Provider, e.Detail)
}

// ResponseMissingChoices means a Chat-Completions response parsed as JSON
// but carried no choices/output to extract a message from.
type ResponseMissingChoices struct {
	Provider string
}

func (e *ResponseMissingChoices) Error() string {
	return fmt.Sprintf("response_missing_choices[%s]", e.Provider)
}

// UnsupportedProvider means the dispatcher was asked to route a call for
// a provider id it has no registry entry for.
type UnsupportedProvider struct {
	ProviderID string
}

func (e *UnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported_provider[%s]", e.ProviderID)
}

// excerpt caps a raw body string for inclusion in an error message.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
