package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnhealthy is returned when the DefraDB health check fails.
var ErrUnhealthy = errors.New("defra health check failed")

// WriteResult is the outcome of a document write.
type WriteResult struct {
	DocID string
	CID   string   // most recent commit CID
	CIDs  []string // every commit CID the write returned
}

// Client talks to DefraDB over its HTTP/GraphQL API. Orders and the
// runtime config store both go through it.
type Client struct {
	url        string
	httpClient *http.Client
}

// NewClient builds a client for the given DefraDB base URL.
func NewClient(url string) *Client {
	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GQLRequest is a GraphQL request body.
type GQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GQLResponse is a GraphQL response body.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError is one GraphQL-level error.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message, or "" when the response
// carried none.
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// HealthCheck probes DefraDB's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health-check", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Execute sends one GraphQL request and decodes the response.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	encoded, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/graphql", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("defra server error (status %d): %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("defra returned empty response (status %d)", resp.StatusCode)
	}

	var gqlResp GQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(body))
	}
	return &gqlResp, nil
}

// Query runs a read-only GraphQL query.
func (c *Client) Query(ctx context.Context, query string) (*GQLResponse, error) {
	return c.Execute(ctx, query, nil)
}

// AddSchema registers a GraphQL schema with DefraDB.
func (c *Client) AddSchema(ctx context.Context, schema string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/schema", strings.NewReader(schema))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("schema error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Create inserts a document and returns its docID.
func (c *Client) Create(ctx context.Context, collection string, input map[string]any) (string, error) {
	result, err := c.CreateWithVersion(ctx, collection, input)
	if err != nil {
		return "", err
	}
	return result.DocID, nil
}

// Update applies a partial update to one document. Only the keys in
// input are written; other fields keep their current values.
func (c *Client) Update(ctx context.Context, collection string, docID string, input map[string]any) error {
	_, err := c.UpdateWithVersion(ctx, collection, docID, input)
	return err
}

// Delete removes one document.
func (c *Client) Delete(ctx context.Context, collection string, docID string) error {
	query := fmt.Sprintf(`mutation { delete_%s(docID: %q) { _docID } }`, collection, docID)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if msg := resp.Error(); msg != "" {
		return fmt.Errorf("delete error: %s", msg)
	}
	return nil
}

// CreateWithVersion inserts a document and returns docID plus commit
// CIDs.
func (c *Client) CreateWithVersion(ctx context.Context, collection string, input map[string]any) (WriteResult, error) {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build input: %w", err)
	}
	query := fmt.Sprintf(`mutation { create_%s(input: %s) { _docID _version { cid } } }`, collection, inputGQL)

	return c.runWrite(ctx, query, "create_"+collection, "")
}

// UpdateWithVersion updates a document and returns docID plus commit
// CIDs.
func (c *Client) UpdateWithVersion(ctx context.Context, collection string, docID string, input map[string]any) (WriteResult, error) {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build input: %w", err)
	}
	query := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID _version { cid } } }`, collection, docID, inputGQL)

	return c.runWrite(ctx, query, "update_"+collection, docID)
}

// UpsertWithVersion creates or updates the single document matching
// filter. The filter must match at most one document.
func (c *Client) UpsertWithVersion(ctx context.Context, collection string, filter, createInput, updateInput map[string]any) (WriteResult, error) {
	filterGQL, err := mapToGraphQLInput(filter)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build filter: %w", err)
	}
	createGQL, err := mapToGraphQLInput(createInput)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build create input: %w", err)
	}
	updateGQL, err := mapToGraphQLInput(updateInput)
	if err != nil {
		return WriteResult{}, fmt.Errorf("failed to build update input: %w", err)
	}

	query := fmt.Sprintf(`mutation { upsert_%s(filter: %s, create: %s, update: %s) { _docID _version { cid } } }`,
		collection, filterGQL, createGQL, updateGQL)

	return c.runWrite(ctx, query, "upsert_"+collection, "")
}

// runWrite executes a write mutation and pulls the docID and commit
// CIDs out of the response. fallbackDocID stands in when the response
// omits _docID (updates echo it back inconsistently).
func (c *Client) runWrite(ctx context.Context, query, dataKey, fallbackDocID string) (WriteResult, error) {
	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return WriteResult{}, err
	}
	if msg := resp.Error(); msg != "" {
		return WriteResult{}, fmt.Errorf("%s error: %s", strings.SplitN(dataKey, "_", 2)[0], msg)
	}

	result := WriteResult{DocID: fallbackDocID}
	docs, ok := resp.Data[dataKey].([]any)
	if !ok || len(docs) == 0 {
		if fallbackDocID != "" {
			return result, nil
		}
		return WriteResult{}, fmt.Errorf("unexpected response format: %+v", resp.Data)
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		if fallbackDocID != "" {
			return result, nil
		}
		return WriteResult{}, fmt.Errorf("unexpected response format: %+v", resp.Data)
	}

	if docID, ok := doc["_docID"].(string); ok && docID != "" {
		result.DocID = docID
	}
	if cids := extractVersionCIDs(doc); len(cids) > 0 {
		result.CIDs = cids
		result.CID = cids[0]
	}
	if result.DocID == "" {
		return WriteResult{}, fmt.Errorf("write response missing _docID: %+v", resp.Data)
	}
	return result, nil
}

func extractVersionCIDs(doc map[string]any) []string {
	raw, ok := doc["_version"].([]any)
	if !ok {
		return nil
	}
	cids := make([]string, 0, len(raw))
	for _, entry := range raw {
		version, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if cid, ok := version["cid"].(string); ok && cid != "" {
			cids = append(cids, cid)
		}
	}
	return cids
}

// mapToGraphQLInput renders a map as a GraphQL input object literal.
func mapToGraphQLInput(input map[string]any) (string, error) {
	var parts []string
	for k, v := range input {
		rendered, err := valueToGraphQL(v)
		if err != nil {
			return "", fmt.Errorf("failed to convert value for key %q: %w", k, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, rendered))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// valueToGraphQL renders one Go value in GraphQL literal syntax.
/// Strings go through JSON encoding: Go's %q emits escapes like \xHH
// that GraphQL rejects, while JSON's escape set is a GraphQL subset.
func valueToGraphQL(v any) (string, error) {
	switch val := v.(type) {
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal string: %w", err)
		}
		return string(b), nil
	case int, int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case map[string]any:
		return mapToGraphQLInput(val)
	case []string:
		items := make([]string, 0, len(val))
		for _, item := range val {
			rendered, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, rendered)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			rendered, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, rendered)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(b), nil
	}
}
