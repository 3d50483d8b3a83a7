// Package validation provides the allow-list checks applied to component
// names, source prefixes and request origins before they reach the
// filesystem, the cache or a URL.
package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/conneroisu/tsxbridge/internal/errors"
)

var (
	// componentNamePattern is the complete allow-list for component names.
	// Names double as cache keys, stat targets and URL segments.
	componentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.:]+$`)
	prefixPattern        = regexp.MustCompile(`^[A-Za-z0-9_.]*$`)
)

// ValidateComponentName rejects empty names and any name containing a
// character outside [A-Za-z0-9_.:]. That excludes path separators, shell
// metacharacters and markup.
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.NewInvalidNameError(name, "name cannot be empty")
	}

	if componentNamePattern.MatchString(name) {
		return nil
	}

	for _, r := range name {
		if !isNameRune(r) {
			return errors.NewInvalidNameError(name, fmt.Sprintf("contains disallowed character %q", r))
		}
	}

	return errors.NewInvalidNameError(name, "does not match [A-Za-z0-9_.:]+")
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '_' || r == '.' || r == ':'
}

// ValidatePrefix checks a source namespace prefix. The empty prefix is
// valid; a colon is not, since it separates prefix from path.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("prefix %q may only contain letters, digits, '_' and '.'", prefix)
	}
	return nil
}

// ValidateOrigin validates WebSocket origin for CSRF protection
func ValidateOrigin(origin string, allowedOrigins []string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}

	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || origin == allowed || originURL.Host == allowed {
			return nil
		}
	}

	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// ValidateURL validates URLs for browser auto-open functionality
// Prevents command injection via URL parameters
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	dangerous := []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", " "}
	for _, char := range dangerous {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %q", char)
		}
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}
