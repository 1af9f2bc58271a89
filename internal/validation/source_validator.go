package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/veranemoloko/retro-installer/internal/domain"
	"github.com/veranemoloko/retro-installer/internal/source"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("source_uri", validateSourceURI)
}

// ValidateRequest checks an enqueue request against its struct tags.
func ValidateRequest(req *domain.CreateTaskRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// ValidateSource checks a single source descriptor.
func ValidateSource(src domain.SourceDescriptor) error {
	if err := validate.Var(string(src), "required,source_uri"); err != nil {
		return fmt.Errorf("invalid source %q: %w", src, err)
	}
	return nil
}

var forbiddenHosts = []string{
	"localhost",
	"127.0.0.1",
	"::1",
	"0.0.0.0",
	"169.254.169.254",
}

func validateSourceURI(fl validator.FieldLevel) bool {
	desc, err := source.Parse(domain.SourceDescriptor(fl.Field().String()))
	if err != nil {
		return false
	}

	switch desc.Scheme {
	case source.SchemeHTTP, source.SchemeHTTPS:
		return safeHost(desc.URI)
	default:
		return true
	}
}

func safeHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Hostname()
	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return false
		}
	}

	return true
}
