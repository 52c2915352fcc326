package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/foomo/annotationserver/requests"
	"github.com/foomo/annotationserver/responses"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type (
	// Client talks to the json api of an annotation server
	Client struct {
		endpoint   string
		httpClient *http.Client
	}
	Option func(*Client)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func WithHTTPClient(v *http.Client) Option {
	return func(o *Client) {
		o.httpClient = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewHTTPClient creates a client for server, the base url the handler is mounted on
func NewHTTPClient(server string, opts ...Option) (*Client, error) {
	if !isValidURL(server) {
		return nil, fmt.Errorf("invalid server url %q", server)
	}
	inst := &Client{
		endpoint:   server,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(inst)
	}
	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Keys lists all items with a saved record
func (c *Client) Keys(ctx context.Context) ([]string, error) {
	response := &responses.Keys{}
	if err := c.call(ctx, http.MethodGet, "/api/explanations", nil, response); err != nil {
		return nil, err
	}
	return response.Keys, nil
}

// Load reads the record of an item, missing items yield an empty record
func (c *Client) Load(ctx context.Context, item string) (*responses.Load, error) {
	response := &responses.Load{}
	if err := c.call(ctx, http.MethodGet, "/api/explanations/"+url.PathEscape(item), nil, response); err != nil {
		return nil, err
	}
	return response, nil
}

// Save replaces the record of an item
func (c *Client) Save(ctx context.Context, item string, request *requests.Save) (*responses.Save, error) {
	response := &responses.Save{}
	if err := c.call(ctx, http.MethodPut, "/api/explanations/"+url.PathEscape(item), request, response); err != nil {
		return nil, err
	}
	return response, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (c *Client) call(ctx context.Context, method, path string, request, response interface{}) error {
	var body io.Reader
	if request != nil {
		requestBytes, err := json.Marshal(request)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(requestBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResponse, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer httpResponse.Body.Close()

	responseBytes, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	envelope := &struct {
		Reply jsoniter.RawMessage `json:"reply"`
	}{}
	if err := json.Unmarshal(responseBytes, envelope); err != nil {
		if httpResponse.StatusCode != http.StatusOK {
			return fmt.Errorf("non 200 reply: %d", httpResponse.StatusCode)
		}
		return errors.Wrap(err, "failed to unmarshal response")
	}

	if httpResponse.StatusCode != http.StatusOK {
		serverErr := &responses.Error{}
		if err := json.Unmarshal(envelope.Reply, serverErr); err != nil || serverErr.Message == "" {
			return fmt.Errorf("non 200 reply: %d", httpResponse.StatusCode)
		}
		return serverErr
	}

	return json.Unmarshal(envelope.Reply, response)
}

func isValidURL(str string) bool {
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
