// Package parsera provides a Go client for the Parsera structured-data
// extraction API, built around a resilient request engine.
//
// It wraps the standard net/http client and adds:
//   - Minimum spacing between outbound attempts via a token bucket
//     (golang.org/x/time/rate), shared by all extractions on one client
//   - Automatic retry with exponential backoff on rate-limit responses and
//     transient network failures
//   - A cancellable per-attempt deadline, classified as Timeout or Cancelled
//   - A lifecycle event stream (extract:start, rateLimit, request:retry,
//     extract:complete, ...) with synchronous or fire-and-forget delivery
//   - A typed error taxonomy usable with errors.Is
//   - Atomic stats tracking (total attempts, errors, rate-limited count)
//
// Configuration uses the functional options pattern:
//
//	client, err := parsera.New(apiKey,
//	    parsera.WithRetry(3, time.Second),
//	    parsera.WithTimeout(30*time.Second),
//	    parsera.WithProxyCountry("United States"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	data, err := client.Extract(ctx, parsera.ExtractRequest{
//	    URL: "https://example.com/products",
//	    Attributes: []parsera.Attribute{
//	        {Name: "title", Description: "product title"},
//	        {Name: "price", Description: "price with currency"},
//	    },
//	})
package parsera
