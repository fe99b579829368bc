package cerberus

import (
	"context"
	"net/http"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

type secretListResponse struct {
	Data struct {
		Keys []string `json:"keys"`
	} `json:"data"`
}

type secretResponse struct {
	Data map[string]string `json:"data"`
}

// List returns the keys directly under path. Folders end in "/". A path with
// no children is not an error and yields an empty list.
func (c *Client) List(ctx context.Context, path string) ([]string, error) {
	u := withQuery(BuildURL(c.baseURL, secretPrefix, path, 0, 0), "list", "true")

	var out secretListResponse
	err := c.get(ctx, u, &out)
	if cerrors.IsNotFound(err) {
		c.logger.Debug("nothing to list under %s", path)
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if out.Data.Keys == nil {
		return []string{}, nil
	}
	return out.Data.Keys, nil
}

// Read returns the key/value pairs stored at path.
func (c *Client) Read(ctx context.Context, path string) (map[string]string, error) {
	return c.read(ctx, BuildURL(c.baseURL, secretPrefix, path, 0, 0))
}

// ReadVersion returns the key/value pairs of a past version of path.
// "CURRENT" selects the latest version.
func (c *Client) ReadVersion(ctx context.Context, path, versionID string) (map[string]string, error) {
	if versionID == "" {
		return nil, cerrors.InvalidArgument("version id must not be blank")
	}
	return c.read(ctx, withQuery(BuildURL(c.baseURL, secretPrefix, path, 0, 0), "versionId", versionID))
}

func (c *Client) read(ctx context.Context, u string) (map[string]string, error) {
	var out secretResponse
	if err := c.get(ctx, u, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return map[string]string{}, nil
	}
	return out.Data, nil
}

// Write replaces the key/value pairs at path with data.
func (c *Client) Write(ctx context.Context, path string, data map[string]string) error {
	if data == nil {
		data = map[string]string{}
	}
	req := transport.Request{
		Method: http.MethodPost,
		URL:    BuildURL(c.baseURL, secretPrefix, path, 0, 0),
		Body:   data,
	}
	return c.call(ctx, req, http.StatusNoContent, nil)
}

// Delete removes the secret at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	req := transport.Request{Method: http.MethodDelete, URL: BuildURL(c.baseURL, secretPrefix, path, 0, 0)}
	return c.call(ctx, req, http.StatusNoContent, nil)
}

// ListSecretVersions returns one page of the version history of path.
func (c *Client) ListSecretVersions(ctx context.Context, path string, limit, offset int) (*SecretVersions, error) {
	var out SecretVersions
	if err := c.get(ctx, BuildURL(c.baseURL, secretVersionsPrefix, path, limit, offset), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
