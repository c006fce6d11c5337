package headers

import (
	"encoding/json"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func keysLower(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, strings.ToLower(k))
	}
	return keys
}

func TestInbound_StripsInfraHeaders(t *testing.T) {
	src := http.Header{
		"Host":             {"evil"},
		"Cf-Connecting-Ip": {"1.2.3.4"},
		"X-Forwarded-For":  {"1.2.3.4"},
		"Cdn-Loop":         {"cloudflare"},
		"Api-Token":        {"secret"},
		"X-Keep":           {"yes"},
	}

	out := Inbound(src, Overrides{Extra: `{"host":"evil2","CF-Ray":"abc","X-Extra":"1"}`})

	for _, k := range keysLower(out) {
		assert.False(t, Stripped(k), "stripped key %q leaked", k)
	}
	assert.Equal(t, "yes", out.Get("X-Keep"))
	assert.Equal(t, []string{"1"}, out["X-Extra"])
}

func TestProperty_InboundNeverLeaksStripped(t *testing.T) {
	names := make([]string, 0, len(stripped))
	for k := range stripped {
		names = append(names, k)
	}

	rapid.Check(t, func(t *rapid.T) {
		src := http.Header{}
		extra := map[string]string{}
		n := rapid.IntRange(0, 8).Draw(t, "n")
		for i := 0; i < n; i++ {
			name := rapid.SampledFrom(names).Draw(t, "name")
			if rapid.Bool().Draw(t, "upper") {
				name = strings.ToUpper(name)
			}
			if rapid.Bool().Draw(t, "extra") {
				extra[name] = "x"
			} else {
				src[name] = []string{"x"}
			}
		}
		raw, _ := json.Marshal(extra)

		out := Inbound(src, Overrides{Extra: string(raw)})
		for k := range out {
			if Stripped(k) {
				t.Fatalf("stripped key %q present in %v", k, out)
			}
		}
	})
}

func TestInbound_Defaults(t *testing.T) {
	out := Inbound(http.Header{}, Overrides{})

	assert.Equal(t, DefaultUserAgent, out.Get("User-Agent"))
	assert.Equal(t, DefaultAccept, out.Get("Accept"))
	assert.Equal(t, DefaultAcceptLanguage, out.Get("Accept-Language"))
	assert.Empty(t, out.Get("Referer"))
	assert.Empty(t, out.Get("Origin"))
}

func TestInbound_KeepsCallerValues(t *testing.T) {
	src := http.Header{
		"User-Agent":      {"curl/8"},
		"Accept":          {"image/*"},
		"Accept-Language": {"ja"},
	}
	out := Inbound(src, Overrides{})

	assert.Equal(t, "curl/8", out.Get("User-Agent"))
	assert.Equal(t, "image/*", out.Get("Accept"))
	assert.Equal(t, "ja", out.Get("Accept-Language"))
}

func TestInbound_UserAgentOverrideWins(t *testing.T) {
	src := http.Header{"User-Agent": {"curl/8"}}
	out := Inbound(src, Overrides{UserAgent: "Custom/1.0", Extra: `{"user-agent":"FromExtra"}`})

	assert.Equal(t, []string{"Custom/1.0"}, out["User-Agent"])
	assert.NotContains(t, out, "user-agent")
}

func TestInbound_RefererAndOrigin(t *testing.T) {
	out := Inbound(http.Header{}, Overrides{Referer: "https://mangadex.org/chapter/1"})
	assert.Equal(t, "https://mangadex.org/chapter/1", out.Get("Referer"))
	assert.Equal(t, "https://mangadex.org", out.Get("Origin"))

	existing := Inbound(http.Header{"Referer": {"https://a.example/"}}, Overrides{Referer: "https://b.example/"})
	assert.Equal(t, "https://a.example/", existing.Get("Referer"))
	assert.Empty(t, existing.Get("Origin"))

	keepOrigin := Inbound(http.Header{"Origin": {"https://o.example"}}, Overrides{Referer: "https://b.example/x"})
	assert.Equal(t, "https://o.example", keepOrigin.Get("Origin"))

	bad := Inbound(http.Header{}, Overrides{Referer: "not a url"})
	assert.Equal(t, "not a url", bad.Get("Referer"))
	assert.Empty(t, bad.Get("Origin"))
}

func TestInbound_CookieOverrideAlwaysWins(t *testing.T) {
	src := http.Header{"Cookie": {"a=1"}}
	out := Inbound(src, Overrides{Cookies: "session=xyz", Extra: `{"cookie":"b=2"}`})

	assert.Equal(t, []string{"session=xyz"}, out["Cookie"])
	assert.NotContains(t, out, "cookie")
}

func TestInbound_DoesNotAliasSource(t *testing.T) {
	src := http.Header{"X-A": {"1"}}
	out := Inbound(src, Overrides{})
	out["X-A"][0] = "changed"

	assert.Equal(t, "1", src.Get("X-A"))
}

func TestInbound_CanonicalizesExtraKeys(t *testing.T) {
	out := Inbound(http.Header{}, Overrides{Extra: `{"user-agent":"MyBrowser/1.0","x-custom-thing":"1","accept":"image/*"}`})

	assert.Equal(t, []string{"MyBrowser/1.0"}, out["User-Agent"])
	assert.Equal(t, []string{"1"}, out["X-Custom-Thing"])
	assert.Equal(t, []string{"image/*"}, out["Accept"])
	for k := range out {
		assert.Equal(t, textproto.CanonicalMIMEHeaderKey(k), k)
	}
}

func TestInbound_DropsHopByHop(t *testing.T) {
	src := http.Header{
		"Connection":          {"keep-alive, X-Session-Hint"},
		"Keep-Alive":          {"timeout=5"},
		"Te":                  {"trailers"},
		"Upgrade":             {"websocket"},
		"Proxy-Connection":    {"keep-alive"},
		"Proxy-Authorization": {"Basic Zm9vOmJhcg=="},
		"X-Session-Hint":      {"abc"},
		"X-Keep":              {"yes"},
	}
	out := Inbound(src, Overrides{Extra: `{"connection":"close"}`})

	for _, k := range []string{"Connection", "Keep-Alive", "Te", "Upgrade", "Proxy-Connection", "Proxy-Authorization", "X-Session-Hint"} {
		assert.NotContains(t, out, k)
	}
	assert.Equal(t, "yes", out.Get("X-Keep"))
}

func TestParseExtra(t *testing.T) {
	assert.Nil(t, ParseExtra(""))
	assert.Nil(t, ParseExtra("{not json"))
	assert.Nil(t, ParseExtra(`["a"]`))
	assert.Equal(t, map[string]string{"A": "x", "N": "3", "B": "true"},
		ParseExtra(`{"A":"x","N":3,"B":true,"O":{"k":1},"Z":null}`))
}

func TestOutbound(t *testing.T) {
	src := http.Header{
		"Content-Length":    {"10"},
		"Transfer-Encoding": {"chunked"},
		"Connection":        {"close"},
		"Keep-Alive":        {"timeout=5"},
		"Server":            {"nginx"},
		"X-Custom":          {"ok"},
		"Set-Cookie":        {"a=1", "b=2"},
	}

	out := Outbound(src)

	assert.Equal(t, "ok", out.Get("X-Custom"))
	assert.Equal(t, []string{"a=1", "b=2"}, out.Values("Set-Cookie"))
	for _, k := range []string{"Content-Length", "Transfer-Encoding", "Connection", "Keep-Alive", "Server"} {
		assert.Empty(t, out.Values(k), k)
	}
}

func TestCopyOutbound(t *testing.T) {
	w := http.Header{}
	CopyOutbound(w, http.Header{"X-Test": {"1"}, "Content-Length": {"3"}})

	assert.Equal(t, "1", w.Get("X-Test"))
	assert.Empty(t, w.Get("Content-Length"))
}
