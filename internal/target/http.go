package target

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/propagation"

	"github.com/mcastellin/uptime-gossip/internal/probe"
)

var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// httpClient is shared across every HTTPTarget; connection reuse matters
// when a single agent runs many HTTP probes on a tight interval.
var httpClient = &http.Client{}

// HTTPTarget issues one HTTP request and records its status, headers, and
// body as a Sample.
type HTTPTarget struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

func (t *HTTPTarget) Run(ctx context.Context) (probe.Sample, error) {
	var body io.Reader
	if t.Body != "" {
		body = strings.NewReader(t.Body)
	}

	req, err := http.NewRequestWithContext(ctx, t.Method, t.URL, body)
	if err != nil {
		return nil, fmt.Errorf("target.http: building request: %w", err)
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("target.http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("target.http: reading response body: %w", err)
	}

	sample := probe.Sample{
		"http.status":      probe.IntValue(int64(resp.StatusCode)),
		"http.proto":       probe.StringValue(resp.Proto),
		"http.body":        probe.StringValue(string(respBody)),
		"http.content_len": probe.IntValue(resp.ContentLength),
	}
	for k, v := range resp.Header {
		key := "http.header." + strings.ToLower(k)
		if len(v) == 1 {
			sample[key] = probe.StringValue(v[0])
		} else {
			vals := make([]probe.Value, len(v))
			for i, s := range v {
				vals[i] = probe.StringValue(s)
			}
			sample[key] = probe.ListValue(vals...)
		}
	}
	return sample, nil
}

func (t *HTTPTarget) String() string {
	return fmt.Sprintf("HTTP %s %s", t.Method, t.URL)
}
