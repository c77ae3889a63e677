package web

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errWildcardOrigin      = errors.New("web.cors.wildcard_origin")
	errEmptyAllowedOrigins = errors.New("web.cors.no_origins")
	errInvalidOrigin       = errors.New("web.cors.invalid_origin")
)

// Ports browsers omit from the Origin header for their scheme.
var defaultOriginPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// ConfigureCORS enables cross-origin requests carrying bearer tokens for the supplied origins.
func ConfigureCORS(logger *zap.Logger, allowedOrigins []string) (gin.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sanitized, err := sanitizeOrigins(logger, allowedOrigins)
	if err != nil {
		return nil, err
	}
	config := cors.Config{
		AllowOrigins:     sanitized,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(config), nil
}

// sanitizeOrigins normalizes each origin to the form browsers send and returns them sorted and unique.
func sanitizeOrigins(logger *zap.Logger, allowed []string) ([]string, error) {
	unique := make(map[string]struct{}, len(allowed))
	for _, raw := range allowed {
		candidate := strings.TrimSpace(raw)
		if candidate == "" {
			continue
		}
		origin, hostname, err := normalizeOrigin(candidate)
		if err != nil {
			return nil, err
		}
		if _, duplicate := unique[origin]; duplicate {
			continue
		}
		if strings.HasPrefix(origin, "http://") && !isDevelopmentHost(hostname) {
			logger.Warn("plain http origin allowed to send bearer tokens",
				zap.String("code", "web.cors.plain_http_origin"),
				zap.String("origin", origin))
		}
		unique[origin] = struct{}{}
	}
	if len(unique) == 0 {
		return nil, errEmptyAllowedOrigins
	}

	origins := make([]string, 0, len(unique))
	for origin := range unique {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins, nil
}

// normalizeOrigin lowercases scheme and host and drops the scheme's default port.
func normalizeOrigin(candidate string) (string, string, error) {
	if candidate == "*" {
		return "", "", errWildcardOrigin
	}
	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not scheme://host[:port]", errInvalidOrigin, candidate)
	}
	scheme := strings.ToLower(parsed.Scheme)
	defaultPort, supported := defaultOriginPorts[scheme]
	if !supported {
		return "", "", fmt.Errorf("%w: %q must use http or https", errInvalidOrigin, candidate)
	}
	if strings.Trim(parsed.Path, "/") != "" || parsed.RawQuery != "" || parsed.Fragment != "" || parsed.User != nil {
		return "", "", fmt.Errorf("%w: %q must not carry a path, query, fragment, or credentials", errInvalidOrigin, candidate)
	}

	hostname := strings.ToLower(parsed.Hostname())
	host := parsed.Host
	if port := parsed.Port(); port == "" || port == defaultPort {
		host = parsed.Hostname()
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
	}
	return scheme + "://" + strings.ToLower(host), hostname, nil
}

func isDevelopmentHost(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
