package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/veranemoloko/retro-installer/internal/domain"
	errpkg "github.com/veranemoloko/retro-installer/internal/errors"
)

const (
	SchemeArweave = "arv"
	SchemeSwitch  = "switch"
	SchemeHTTP    = "http"
	SchemeHTTPS   = "https"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Descriptor is a parsed source reference.
type Descriptor struct {
	Scheme     string
	Identifier string
	URI        string
}

// Parse splits a descriptor into scheme and identifier. Plain http(s) URLs
// keep the whole URI as identifier.
func Parse(raw domain.SourceDescriptor) (Descriptor, error) {
	s := strings.TrimSpace(string(raw))
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || rest == "" {
		return Descriptor{}, fmt.Errorf("%w: %q", errpkg.ErrInvalidSource, s)
	}

	scheme = strings.ToLower(scheme)
	switch scheme {
	case SchemeArweave, SchemeSwitch:
		if !identifierPattern.MatchString(rest) {
			return Descriptor{}, fmt.Errorf("%w: bad identifier %q", errpkg.ErrInvalidSource, rest)
		}
		return Descriptor{Scheme: scheme, Identifier: rest, URI: s}, nil
	case SchemeHTTP, SchemeHTTPS:
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return Descriptor{}, fmt.Errorf("%w: %q", errpkg.ErrInvalidSource, s)
		}
		return Descriptor{Scheme: scheme, Identifier: s, URI: s}, nil
	default:
		return Descriptor{}, fmt.Errorf("%w: unsupported scheme %q", errpkg.ErrInvalidSource, scheme)
	}
}

// SupportedScheme reports whether Parse understands scheme.
func SupportedScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case SchemeArweave, SchemeSwitch, SchemeHTTP, SchemeHTTPS:
		return true
	}
	return false
}

// ValidIdentifier reports whether id is acceptable for arv and switch sources.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}
