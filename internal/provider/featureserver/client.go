// Package featureserver implements coordinator.Provider against a feature
// service's JSON REST API: the service root, its network definition, trace
// execution and per-group feature fetches.
package featureserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vk/tracegridgo/internal/coordinator"
	"github.com/vk/tracegridgo/internal/ctxlog"
	"github.com/vk/tracegridgo/internal/network"
)

// Options configure a Client.
type Options struct {
	// BaseURL is the service root, without a trailing slash.
	BaseURL string
	// Token is sent as a bearer credential when non-empty.
	Token string
	// Timeout bounds each individual request. Zero means 30s.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests. When nil a
	// client with the configured timeout is built.
	HTTPClient *http.Client
}

// Client is a stateful, shareable feature-service client. It is safe for
// concurrent use; the coordinator's fan-out calls FetchGroup from multiple
// goroutines.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient builds a client from options.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		httpc:   httpc,
	}
}

// rootHandle is the opaque root reference handed back by LoadRoot.
type rootHandle struct {
	Name          string `json:"name"`
	DefinitionURL string `json:"definitionUrl"`
}

// LoadRoot loads the service root. The returned handle carries the
// definition URL the service advertises.
func (c *Client) LoadRoot(ctx context.Context) (coordinator.RootHandle, error) {
	var root rootHandle
	if err := c.getJSON(ctx, c.baseURL+"/?f=json", &root); err != nil {
		return nil, fmt.Errorf("service root: %w", err)
	}
	if root.DefinitionURL == "" {
		root.DefinitionURL = c.baseURL + "/definition"
	}
	return root, nil
}

// definitionDoc is the wire shape of the network definition.
type definitionDoc struct {
	Name    string         `json:"name"`
	Sources []sourceDoc    `json:"networkSources"`
	Base    map[string]any `json:"baseConfiguration"`
}

type sourceDoc struct {
	Name   string     `json:"name"`
	Groups []groupDoc `json:"assetGroups"`
}

type groupDoc struct {
	Name  string   `json:"name"`
	Types []string `json:"assetTypes"`
}

// LoadDefinition fetches and translates the network definition exposed by
// the loaded root.
func (c *Client) LoadDefinition(ctx context.Context, root coordinator.RootHandle) (*network.Definition, error) {
	handle, ok := root.(rootHandle)
	if !ok {
		return nil, fmt.Errorf("network definition: root handle of unexpected type %T", root)
	}

	var doc definitionDoc
	if err := c.getJSON(ctx, handle.DefinitionURL, &doc); err != nil {
		return nil, fmt.Errorf("network definition: %w", err)
	}

	def := &network.Definition{Name: doc.Name, Base: doc.Base}
	for _, s := range doc.Sources {
		src := network.Source{Name: s.Name}
		for _, g := range s.Groups {
			grp := network.Group{Name: g.Name}
			for _, t := range g.Types {
				grp.Types = append(grp.Types, network.EntityType{Name: t})
			}
			src.Groups = append(src.Groups, grp)
		}
		def.Sources = append(def.Sources, src)
	}
	return def, nil
}

// elementHandle is the opaque entity reference the trace request carries.
type elementHandle struct {
	Type       string `json:"assetType"`
	Identifier string `json:"globalId"`
}

// MakeElement builds the entity handle for the trace's starting point.
func (c *Client) MakeElement(typ network.EntityType, id uuid.UUID) (any, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("element identifier must not be the nil UUID")
	}
	return elementHandle{Type: typ.Name, Identifier: id.String()}, nil
}

// traceRequest is the wire shape of a trace call.
type traceRequest struct {
	Element any             `json:"startingElement"`
	Base    map[string]any  `json:"baseConfiguration"`
	Filter  string          `json:"filterCategory"`
	Flags   map[string]bool `json:"flags"`
}

type traceResponse struct {
	Elements []struct {
		NetworkSource string          `json:"networkSource"`
		Ref           json.RawMessage `json:"element"`
	} `json:"elements"`
}

// Trace runs the trace and tags every returned element with its
// network-source group key.
func (c *Client) Trace(ctx context.Context, start network.Element, cfg network.Configuration) ([]network.ResultItem, error) {
	req := traceRequest{
		Element: start.Handle,
		Base:    cfg.Base(),
		Filter:  cfg.Filter(),
		Flags:   cfg.Flags(),
	}

	var resp traceResponse
	if err := c.postJSON(ctx, c.baseURL+"/trace", req, &resp); err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}

	items := make([]network.ResultItem, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		items = append(items, network.ResultItem{GroupKey: e.NetworkSource, Ref: e.Ref})
	}
	return items, nil
}

type fetchRequest struct {
	Group    string `json:"group"`
	Elements []any  `json:"elements"`
}

type fetchResponse struct {
	Features []struct {
		ID         string         `json:"id"`
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
}

// FetchGroup fetches the features for one group of trace results.
func (c *Client) FetchGroup(ctx context.Context, key string, items []network.ResultItem) ([]network.ResolvedItem, error) {
	req := fetchRequest{Group: key}
	for _, item := range items {
		req.Elements = append(req.Elements, item.Ref)
	}

	var resp fetchResponse
	if err := c.postJSON(ctx, c.baseURL+"/fetch", req, &resp); err != nil {
		return nil, fmt.Errorf("fetch group %q: %w", key, err)
	}

	resolved := make([]network.ResolvedItem, 0, len(resp.Features))
	for _, f := range resp.Features {
		resolved = append(resolved, network.ResolvedItem{ID: f.ID, Attributes: f.Attributes})
	}
	return resolved, nil
}

// getJSON issues a GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logger := ctxlog.FromContext(req.Context())
	logger.Debug("Feature service request.", "method", req.Method, "url", req.URL.String(), "requestID", requestID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
