package sources

import "strings"

// ConfigString returns the trimmed string value for key from cfg.Config or a fallback.
func ConfigString(cfg Source, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey      = "user_agent"
	ConfigAcceptKey         = "accept"
	ConfigAcceptLanguageKey = "accept_language"
	ConfigCacheControlKey   = "cache_control"
	// ConfigURLPrefixKey restricts ValidateURL for rss and sitemap sources.
	ConfigURLPrefixKey = "url_prefix"
	// ConfigContentSelectorKey overrides readability with a CSS selector for body text.
	ConfigContentSelectorKey = "content_selector"
	// ConfigDatedTimezoneKey makes sitemap sources append yyyy/mm/dd query
	// parameters for today in the named IANA zone.
	ConfigDatedTimezoneKey = "dated_timezone"
)

// Headers builds the common request headers from a source config, skipping empty values.
func Headers(cfg Source) map[string]string {
	headers := make(map[string]string, 4)

	if v := ConfigString(cfg, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptKey, ""); v != "" {
		headers["Accept"] = v
	}
	if v := ConfigString(cfg, ConfigAcceptLanguageKey, ""); v != "" {
		headers["Accept-Language"] = v
	}
	if v := ConfigString(cfg, ConfigCacheControlKey, ""); v != "" {
		headers["Cache-Control"] = v
	}

	return headers
}
