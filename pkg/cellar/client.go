// Package cellar talks to the EU Publications Office: SPARQL queries
// against the Cellar endpoint to resolve a CELEX number to a downloadable
// Formex manifestation, and the download itself.
package cellar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coolbeans/fmxcorpus/pkg/config"
)

const (
	sparqlResultsJSON = "application/sparql-results+json"

	// Cellar tolerates modest request rates; one request per second keeps
	// multi-step resolution well inside that.
	defaultMinInterval = time.Second
)

// Client is a SPARQL client for one endpoint.
type Client struct {
	endpoint string
	http     HTTPClient
}

// NewClient creates a rate-limited client for the endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	inner := &http.Client{Timeout: timeout}
	return &Client{
		endpoint: endpoint,
		http:     NewRateLimitedHTTPClient(inner, defaultMinInterval),
	}
}

// NewClientWithHTTP creates a client over a caller-supplied transport.
func NewClientWithHTTP(endpoint string, client HTTPClient) *Client {
	return &Client{endpoint: endpoint, http: client}
}

// BindingValue is one cell of a SPARQL result row.
type BindingValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Results is the decoded sparql-results+json response body.
type Results struct {
	Results struct {
		Bindings []map[string]BindingValue `json:"bindings"`
	} `json:"results"`
}

// Query POSTs a SPARQL query form-encoded and decodes the JSON results.
func (c *Client) Query(ctx context.Context, query string) (*Results, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("format", sparqlResultsJSON)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build SPARQL request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparqlResultsJSON)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("SPARQL request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("SPARQL endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var results Results
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode SPARQL results: %w", err)
	}
	return &results, nil
}

// RunStep renders a step's query template against vars, runs it, and
// extracts the step's bound variable. Collect steps return every row's
// value; others just the first row. A step whose binding comes back empty
// is an error; the caller decides whether that aborts the run.
func (c *Client) RunStep(ctx context.Context, step config.Step, vars map[string]string) ([]string, error) {
	query, err := RenderTemplate(step.Template, vars)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.Name, err)
	}

	results, err := c.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", step.Name, err)
	}

	var values []string
	for _, row := range results.Results.Bindings {
		binding, ok := row[step.Bind]
		if !ok || binding.Value == "" {
			continue
		}
		values = append(values, binding.Value)
		if !step.Collect {
			break
		}
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("step %s: no rows bound %q", step.Name, step.Bind)
	}
	return values, nil
}
