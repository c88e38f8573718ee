package clients

import (
	"strconv"
	"strings"
	"time"
)

// HeaderPrefix marks connector parameters that become request headers, as in
// "headers.Authorization".
const HeaderPrefix = "headers."

// ConfigFromParams builds a client configuration from connector parameters:
// rate_limit, rate_burst, timeout_seconds, token_url, client_id,
// client_secret and scopes.
func ConfigFromParams(params map[string]string) *HTTPConfig {
	cfg := DefaultHTTPConfig()

	if v, err := strconv.ParseFloat(params["rate_limit"], 64); err == nil && v > 0 {
		cfg.RateLimit = v
		cfg.RateBurst = 1
	}
	if v, err := strconv.Atoi(params["rate_burst"]); err == nil && v > 0 {
		cfg.RateBurst = v
	}
	if v, err := strconv.Atoi(params["timeout_seconds"]); err == nil && v > 0 {
		cfg.RequestTimeout = time.Duration(v) * time.Second
	}
	if tokenURL := strings.TrimSpace(params["token_url"]); tokenURL != "" {
		cfg.OAuth2 = &OAuth2Config{
			TokenURL:     tokenURL,
			ClientID:     params["client_id"],
			ClientSecret: params["client_secret"],
		}
		if scopes := strings.TrimSpace(params["scopes"]); scopes != "" {
			cfg.OAuth2.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
		}
	}
	return cfg
}

// HeadersFromParams extracts the "headers." parameters.
func HeadersFromParams(params map[string]string) map[string]string {
	headers := make(map[string]string)
	for k, v := range params {
		if name, ok := strings.CutPrefix(k, HeaderPrefix); ok && name != "" {
			headers[name] = v
		}
	}
	return headers
}
