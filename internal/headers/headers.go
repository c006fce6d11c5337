// Package headers rewrites request headers on the way to the target and
// filters response headers on the way back.
package headers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	DefaultAcceptLanguage = "en-US,en;q=0.9"
)

// stripped never leaves the relay. Keys are lower case.
var stripped = map[string]bool{
	"host":              true,
	"cf-connecting-ip":  true,
	"cf-ipcountry":      true,
	"cf-ray":            true,
	"cf-visitor":        true,
	"cf-worker":         true,
	"cf-ew-via":         true,
	"cdn-loop":          true,
	"x-forwarded-for":   true,
	"x-forwarded-proto": true,
	"x-forwarded-host":  true,
	"x-real-ip":         true,
	"true-client-ip":    true,
	"forwarded":         true,
	"via":               true,
	"api-token":         true,

	// hop-by-hop
	"connection":          true,
	"keep-alive":          true,
	"proxy-connection":    true,
	"proxy-authorization": true,
	"proxy-authenticate":  true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

var skipResponse = map[string]bool{
	"transfer-encoding": true,
	"content-length":    true,
	"connection":        true,
	"keep-alive":        true,
	"server":            true,
}

// Stripped reports whether the inbound transform drops name.
func Stripped(name string) bool {
	return stripped[strings.ToLower(name)]
}

// Overrides are the caller-supplied knobs from the query string.
type Overrides struct {
	Referer   string
	Cookies   string
	UserAgent string
	Extra     string // JSON object of extra headers
}

// OverridesFromQuery reads the referer, cookies, ua and headers parameters.
func OverridesFromQuery(q url.Values) Overrides {
	return Overrides{
		Referer:   q.Get("referer"),
		Cookies:   q.Get("cookies"),
		UserAgent: q.Get("ua"),
		Extra:     q.Get("headers"),
	}
}

// ParseExtra decodes a JSON object of header names to values. Invalid JSON
// yields nil. Numbers and booleans are rendered as text; other value types
// are skipped.
func ParseExtra(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}

	out := make(map[string]string, len(decoded))
	for name, v := range decoded {
		switch v := v.(type) {
		case string:
			out[name] = v
		case float64, bool:
			out[name] = fmt.Sprint(v)
		}
	}
	return out
}

// Inbound builds the header set forwarded to the target. Stripping happens
// before any other mutation and extra headers may not name a stripped key.
func Inbound(src http.Header, ov Overrides) http.Header {
	hop := connectionTokens(src)
	dst := make(http.Header, len(src)+4)
	for name, values := range src {
		if Stripped(name) || hop[strings.ToLower(name)] {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(name)
		dst[key] = append(dst[key], values...)
	}

	for name, value := range ParseExtra(ov.Extra) {
		if Stripped(name) {
			continue
		}
		set(dst, name, value)
	}

	if ov.UserAgent != "" {
		set(dst, "User-Agent", ov.UserAgent)
	} else if !has(dst, "User-Agent") {
		set(dst, "User-Agent", DefaultUserAgent)
	}
	if !has(dst, "Accept") {
		set(dst, "Accept", DefaultAccept)
	}
	if !has(dst, "Accept-Language") {
		set(dst, "Accept-Language", DefaultAcceptLanguage)
	}

	if ov.Referer != "" && !has(dst, "Referer") {
		set(dst, "Referer", ov.Referer)
		if origin, ok := originOf(ov.Referer); ok && !has(dst, "Origin") {
			set(dst, "Origin", origin)
		}
	}

	if ov.Cookies != "" {
		set(dst, "Cookie", ov.Cookies)
	}
	return dst
}

// Outbound copies response headers minus hop-by-hop and server identity
// headers. Repeated values are preserved.
func Outbound(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if skipResponse[strings.ToLower(name)] {
			continue
		}
		dst[name] = append(dst[name], values...)
	}
	return dst
}

// CopyOutbound adds the filtered response headers to w.
func CopyOutbound(w http.Header, src http.Header) {
	for name, values := range Outbound(src) {
		for _, v := range values {
			w.Add(name, v)
		}
	}
}

func originOf(referer string) (string, bool) {
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}

// has reports whether h carries a non-empty value for name, ignoring case.
func has(h http.Header, name string) bool {
	for k, v := range h {
		if strings.EqualFold(k, name) && len(v) > 0 && v[0] != "" {
			return true
		}
	}
	return false
}

// set replaces every case variant of name with a single value stored under
// the canonical key.
func set(h http.Header, name, value string) {
	for k := range h {
		if strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
	h[textproto.CanonicalMIMEHeaderKey(name)] = []string{value}
}

// connectionTokens returns the lower-cased header names listed in any
// Connection header of h.
func connectionTokens(h http.Header) map[string]bool {
	var out map[string]bool
	for k, values := range h {
		if !strings.EqualFold(k, "Connection") {
			continue
		}
		for _, v := range values {
			for _, tok := range strings.Split(v, ",") {
				if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" {
					if out == nil {
						out = map[string]bool{}
					}
					out[tok] = true
				}
			}
		}
	}
	return out
}
