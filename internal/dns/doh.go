package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

type DoHResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Name string `json:"name"`
		Type int    `json:"type"`
		TTL  int    `json:"TTL"`
		Data string `json:"data"`
	} `json:"Answer"`
}

// DoH queries a JSON DNS-over-HTTPS endpoint.
type DoH struct {
	Endpoint string
	Client   *http.Client
}

func NewDoH() *DoH {
	return &DoH{
		Endpoint: "https://cloudflare-dns.com/dns-query",
		Client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *DoH) LookupAAAA(ctx context.Context, host string) (net.IP, error) {
	query := url.Values{}
	query.Add("name", host)
	query.Add("type", "AAAA")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("accept", "application/dns-json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH query for %s returned %s", host, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}

	var dohResp DoHResponse
	if err := json.Unmarshal(body, &dohResp); err != nil {
		return nil, err
	}

	for _, answer := range dohResp.Answer {
		if answer.Type == 28 { // AAAA record
			if ip := net.ParseIP(answer.Data); ip != nil {
				return ip, nil
			}
		}
	}

	return nil, fmt.Errorf("no AAAA record found for %s", host)
}
