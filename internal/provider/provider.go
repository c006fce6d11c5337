// Package provider wraps a few manga sites that only answer requests carrying
// their own Referer and Origin. Responses are decoded before they are
// returned so callers never see site-specific content encodings.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	relayerr "github.com/qza666/v6relay/internal/errors"
	"github.com/qza666/v6relay/internal/headers"
)

// AcceptEncoding is advertised on every provider fetch.
const AcceptEncoding = "gzip, deflate, br, zstd"

// maxBody caps a provider response, both as received and once decoded.
var maxBody int64 = 64 << 20

// readLimited reads r in full and fails once more than maxBody bytes arrive.
func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxBody {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBody)
	}
	return b, nil
}

type Provider struct {
	Name    string
	Referer string
	Origin  string
	Accept  string
}

// Builtin lists the supported providers.
var Builtin = []Provider{
	{
		Name:    "mangadex",
		Referer: "https://mangadex.org/",
		Origin:  "https://mangadex.org",
		Accept:  "application/json, text/plain, */*",
	},
	{
		Name:    "comick",
		Referer: "https://comick.io/",
		Origin:  "https://comick.io",
		Accept:  "application/json, text/plain, */*",
	},
	{
		Name:    "weebcentral",
		Referer: "https://weebcentral.com/",
		Origin:  "https://weebcentral.com",
		Accept:  headers.DefaultAccept,
	},
}

// Lookup finds a builtin provider by name.
func Lookup(name string) (Provider, bool) {
	i := slices.IndexFunc(Builtin, func(p Provider) bool { return p.Name == name })
	if i < 0 {
		return Provider{}, false
	}
	return Builtin[i], true
}

// Header returns the fixed request headers for p.
func (p Provider) Header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", headers.DefaultUserAgent)
	h.Set("Accept", p.Accept)
	h.Set("Accept-Language", headers.DefaultAcceptLanguage)
	h.Set("Accept-Encoding", AcceptEncoding)
	h.Set("Referer", p.Referer)
	h.Set("Origin", p.Origin)
	return h
}

// Result is a fully read and decoded provider response.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Fetcher performs provider requests.
type Fetcher struct {
	Client *http.Client
}

func NewFetcher(rt http.RoundTripper) *Fetcher {
	return &Fetcher{Client: &http.Client{Transport: rt}}
}

// Fetch GETs target with p's headers and returns the decoded body.
func (f *Fetcher) Fetch(ctx context.Context, p Provider, target string) (*Result, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, relayerr.InvalidURL(target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = p.Header()

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", p.Name, err)
	}

	enc := resp.Header.Get("Content-Encoding")
	body, err := Decode(enc, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s response (%s): %w", p.Name, enc, err)
	}

	h := headers.Outbound(resp.Header)
	if strings.TrimSpace(enc) != "" {
		h.Del("Content-Encoding")
	}
	return &Result{Status: resp.StatusCode, Header: h, Body: body}, nil
}
