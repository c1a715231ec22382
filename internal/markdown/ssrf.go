package markdown

import "strings"

// ValidationResult is the outcome of the SSRF check. It is created once per
// invocation and never mutated.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// ValidateTarget decides whether the resolved target URL may be fetched.
// It is the sole gate against server-side request forgery and runs before
// any network call.
//
// A target without a hostname is same-origin by construction and always
// allowed. Otherwise the target hostname must be loopback (localhost,
// 127.0.0.1, ::1) or equal to the request's own hostname; extending this set
// is a deliberate caller decision, never a comparison loosening.
func ValidateTarget(targetHostname, requestHost string) ValidationResult {
	if targetHostname == "" {
		// Relative reference: same-origin by construction.
		return ValidationResult{Valid: true}
	}

	if requestHost == "" {
		return ValidationResult{Valid: false, Reason: "Missing Host header"}
	}

	hostname := strings.ToLower(strings.Trim(targetHostname, "[]"))
	own := strings.ToLower(HostWithoutPort(requestHost))

	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return ValidationResult{Valid: true}
	case own:
		return ValidationResult{Valid: true}
	}

	// The hostname is attacker input reflected back, not a secret; it is the
	// one piece of caller data an error body may carry.
	return ValidationResult{Valid: false, Reason: "External URL not allowed: " + hostname}
}
