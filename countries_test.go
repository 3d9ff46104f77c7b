package parsera

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countryServer serves both endpoints so extraction and enumeration tests can
// share one fake.
func countryServer(t *testing.T, countries []string, countryStatus int) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var countryFetches, extracts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/proxy-countries":
			countryFetches.Add(1)
			if countryStatus != http.StatusOK {
				w.WriteHeader(countryStatus)
				return
			}
			json.NewEncoder(w).Encode(countries)
		case "/extract":
			extracts.Add(1)
			json.NewEncoder(w).Encode(ExtractResponse{Data: []map[string]string{{"title": "Widget"}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &countryFetches, &extracts
}

func TestProxyCountriesCached(t *testing.T) {
	srv, fetches, _ := countryServer(t, []string{"United States", "Germany"}, http.StatusOK)
	c := newTestClient(t, srv.URL)

	got, err := c.ProxyCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"United States", "Germany"}, got)

	_, err = c.ProxyCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetches.Load(), "enumeration is fetched once per client")
}

func TestProxyCountryValidated(t *testing.T) {
	srv, _, extracts := countryServer(t, []string{"United States", "Germany"}, http.StatusOK)
	c := newTestClient(t, srv.URL)

	req := sampleRequest()
	req.ProxyCountry = "Atlantis"
	_, err := c.Extract(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, int32(0), extracts.Load(), "invalid proxy country never reaches the network")

	req.ProxyCountry = "germany" // enumeration match is case-insensitive
	_, err = c.Extract(context.Background(), req)
	require.NoError(t, err)
}

func TestProxyCountryRandomSkipsLookup(t *testing.T) {
	srv, fetches, _ := countryServer(t, []string{"Germany"}, http.StatusOK)
	c := newTestClient(t, srv.URL)

	req := sampleRequest()
	req.ProxyCountry = ProxyCountryRandom
	_, err := c.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(0), fetches.Load())
}

func TestProxyCountryValidationDegradesWhenUnavailable(t *testing.T) {
	srv, _, extracts := countryServer(t, nil, http.StatusInternalServerError)
	c := newTestClient(t, srv.URL)

	// Any non-empty value is accepted while the enumeration is down.
	req := sampleRequest()
	req.ProxyCountry = "Atlantis"
	_, err := c.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), extracts.Load())
}

func TestProxyCountriesError(t *testing.T) {
	srv, _, _ := countryServer(t, nil, http.StatusUnauthorized)
	c := newTestClient(t, srv.URL)

	_, err := c.ProxyCountries(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
