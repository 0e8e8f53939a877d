// Package beacon provides a thin REST client for the beacon node
// endpoints the agent probes.
package beacon

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

const (
	healthPath    = "/eth/v1/node/health"
	headBlockPath = "/eth/v1/beacon/blocks/head"
)

// Client is a wrapper object around the HTTP client.
type Client struct {
	hc      *http.Client
	baseURL *url.URL
}

// NewClient constructs a new client with the provided options (ex WithTimeout).
// `host` is the base host + port used to construct request urls. This value can be
// a URL string, or NewClient will assume an http endpoint if just `host:port` is used.
func NewClient(host string, opts ...ClientOpt) (*Client, error) {
	u, err := urlForHost(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		hc:      &http.Client{},
		baseURL: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func urlForHost(h string) (*url.URL, error) {
	// try to parse as url (being permissive)
	u, err := url.Parse(h)
	if err == nil && u.Host != "" {
		return u, nil
	}
	// try to parse as host:port
	host, port, err := net.SplitHostPort(h)
	if err != nil {
		return nil, ErrMalformedHostname
	}
	return &url.URL{Host: net.JoinHostPort(host, port), Scheme: "http"}, nil
}

// NodeURL returns a human-readable string representation of the beacon node base url.
func (c *Client) NodeURL() string {
	return c.baseURL.String()
}

// get is a generic, opinionated GET function to reduce boilerplate amongst the getters in this package.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = r.Body.Close()
	}()
	if r.StatusCode < 200 || r.StatusCode > 299 {
		return nil, non200Err(r)
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "error reading http response body")
	}
	return b, nil
}

// Health probes GET /eth/v1/node/health. A nil return means the node
// answered with a 2xx code; anything else is reported as an error
// carrying the status code or transport failure.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.get(ctx, healthPath)
	return err
}

// headBlockResponse is the trimmed shape of GET /eth/v1/beacon/blocks/head.
type headBlockResponse struct {
	Data struct {
		Message struct {
			Slot string `json:"slot"`
		} `json:"message"`
	} `json:"data"`
}

// HeadSlot fetches the slot of the current chain head. The beacon API
// encodes slots as decimal strings.
func (c *Client) HeadSlot(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, headBlockPath)
	if err != nil {
		return 0, err
	}
	hb := &headBlockResponse{}
	if err := json.Unmarshal(body, hb); err != nil {
		return 0, errors.Wrap(err, "error decoding head block response")
	}
	slot, err := strconv.ParseUint(hb.Data.Message.Slot, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid slot %q in head block response", hb.Data.Message.Slot)
	}
	return slot, nil
}
