package parsera

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
)

// proxyCountryCache holds the lazily fetched egress-country enumeration.
type proxyCountryCache struct {
	mu        sync.Mutex
	countries []string
}

// ProxyCountries returns the egress countries the service can route page
// fetches through. The enumeration is fetched once and cached for the
// client's lifetime.
func (c *Client) ProxyCountries(ctx context.Context) ([]string, error) {
	c.countryCache.mu.Lock()
	cached := c.countryCache.countries
	c.countryCache.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.baseURL+"/proxy-countries", nil)
	if err != nil {
		return nil, wrapError(KindNetworkError, err, "build proxy-countries request")
	}
	req.Header.Set("X-API-KEY", c.cfg.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapError(KindNetworkError, err, "fetch proxy countries")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, wrapError(KindNetworkError, err, "read proxy countries")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapStatusError(resp.StatusCode, body)
	}

	var countries []string
	if err := json.Unmarshal(body, &countries); err != nil {
		return nil, wrapError(KindServerError, err, "malformed proxy-countries payload")
	}

	c.countryCache.mu.Lock()
	c.countryCache.countries = countries
	c.countryCache.mu.Unlock()
	return countries, nil
}

// validateProxyCountry checks country against the server enumeration. When
// the enumeration cannot be fetched, validation degrades to accepting any
// non-empty value so the client stays usable while that endpoint is down.
func (c *Client) validateProxyCountry(ctx context.Context, country string) error {
	if country == ProxyCountryRandom {
		return nil
	}
	countries, err := c.ProxyCountries(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("proxy-country enumeration unavailable, accepting value as-is")
		if strings.TrimSpace(country) == "" {
			return newError(KindInvalidInput, "proxy country must be non-empty")
		}
		return nil
	}
	for _, v := range countries {
		if strings.EqualFold(v, country) {
			return nil
		}
	}
	return newError(KindInvalidInput, "unknown proxy country %q", country)
}
