package payment

import "strings"

// RedirectDetector recognizes the navigation that ends the hosted payment page.
// Matching is case-sensitive and scheme-exact.
type RedirectDetector struct {
	PrimaryPrefix  string
	FallbackPrefix string
	ResultMarker   string
}

func (d RedirectDetector) Matches(url string) bool {
	if url == "" {
		return false
	}
	if d.PrimaryPrefix != "" && strings.HasPrefix(url, d.PrimaryPrefix) {
		return true
	}
	if d.FallbackPrefix != "" && strings.HasPrefix(url, d.FallbackPrefix) {
		return true
	}
	return d.ResultMarker != "" && strings.Contains(url, d.ResultMarker)
}
