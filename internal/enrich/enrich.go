// Package enrich derives client metadata for a click: device/OS/browser from
// the user-agent, a normalized client IP, and a geolocation summary from an
// external IP lookup. Enrichment never fails; every degraded path yields
// sentinel values so the event shape stays stable.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mileusna/useragent"

	"github.com/linklytics/linklytics/internal"
)

const unknown = "unknown"

// ClientInfo is the device/OS/browser triple derived from a user-agent.
type ClientInfo struct {
	Device  string
	OS      string
	Browser string
}

// ParseUserAgent classifies the raw user-agent string. Undetectable fields
// come back as "unknown" rather than empty.
func ParseUserAgent(raw string) ClientInfo {
	ua := useragent.Parse(raw)

	device := unknown
	switch {
	case ua.Bot:
		device = "bot"
	case ua.Mobile:
		device = "mobile"
	case ua.Tablet:
		device = "tablet"
	case ua.Desktop:
		device = "desktop"
	}

	osName := ua.OS
	if osName == "" {
		osName = unknown
	}
	osStr := strings.TrimSpace(osName + " " + ua.OSVersion)

	browser := ua.Name
	if browser == "" {
		browser = unknown
	}

	return ClientInfo{Device: device, OS: osStr, Browser: browser}
}

// NormalizeIP picks the first X-Forwarded-For hop (the original client) and
// strips the IPv6-mapped-IPv4 prefix some stacks prepend.
func NormalizeIP(forwardedFor, remote string) string {
	ip := remote
	if forwardedFor != "" {
		ip = strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

// Geolocator resolves an IP to a geolocation summary. Implementations must
// degrade to the sentinel GeoData instead of returning an error: the lookup
// sits on the redirect critical path and may never fail it.
type Geolocator interface {
	Lookup(ctx context.Context, ip string) internal.GeoData
}

// IPAPIClient queries an ip-api.com-shaped JSON endpoint.
type IPAPIClient struct {
	baseURL string
	client  *http.Client
}

// NewIPAPIClient builds a lookup client. baseURL defaults to the public
// ip-api.com endpoint; the timeout bounds the redirect latency contribution.
func NewIPAPIClient(baseURL string) *IPAPIClient {
	if baseURL == "" {
		baseURL = "http://ip-api.com"
	}
	return &IPAPIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (c *IPAPIClient) Lookup(ctx context.Context, ip string) internal.GeoData {
	geo := internal.UnavailableGeo()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json/"+ip, nil)
	if err != nil {
		return geo
	}
	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("geolocation lookup failed", "ip", ip, "err", err)
		return geo
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("geolocation lookup returned non-200", "ip", ip, "status", resp.Status)
		return geo
	}

	var body struct {
		City       string `json:"city"`
		RegionName string `json:"regionName"`
		Country    string `json:"country"`
		ISP        string `json:"isp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Warn("geolocation response decode failed", "ip", ip, "err", err)
		return geo
	}

	// Missing fields keep the sentinel so the output shape never thins out.
	if body.City != "" {
		geo.City = body.City
	}
	if body.RegionName != "" {
		geo.Region = body.RegionName
	}
	if body.Country != "" {
		geo.Country = body.Country
	}
	if body.ISP != "" {
		geo.ISP = body.ISP
	}
	return geo
}
