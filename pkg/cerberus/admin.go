package cerberus

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

// ListCategories returns every safe deposit box category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := c.get(ctx, BuildURL(c.baseURL, categoryPrefix, "", 0, 0), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CategoryIDByPath returns the id of the category whose path is
// categoryPath, for example "app".
func (c *Client) CategoryIDByPath(ctx context.Context, categoryPath string) (string, error) {
	categories, err := c.ListCategories(ctx)
	if err != nil {
		return "", err
	}
	for _, category := range categories {
		if strings.EqualFold(category.Path, categoryPath) {
			return category.ID, nil
		}
	}
	return "", cerrors.NewClientError(fmt.Sprintf("no category with path %q", categoryPath), nil)
}

// ListRoles returns every role that can be granted on a safe deposit box.
func (c *Client) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	if err := c.get(ctx, BuildURL(c.baseURL, rolePrefix, "", 0, 0), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RoleIDByName returns the id of the role called name, for example "owner".
func (c *Client) RoleIDByName(ctx context.Context, name string) (string, error) {
	roles, err := c.ListRoles(ctx)
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if strings.EqualFold(role.Name, name) {
			return role.ID, nil
		}
	}
	return "", cerrors.NewClientError(fmt.Sprintf("no role named %q", name), nil)
}

// ListSafeDepositBoxes returns the boxes the caller can access.
func (c *Client) ListSafeDepositBoxes(ctx context.Context) ([]SafeDepositBoxSummary, error) {
	var out []SafeDepositBoxSummary
	if err := c.get(ctx, BuildURL(c.baseURL, sdbPrefix, "", 0, 0), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSafeDepositBox returns the box with the given id.
func (c *Client) GetSafeDepositBox(ctx context.Context, id string) (*SafeDepositBox, error) {
	if strings.TrimSpace(id) == "" {
		return nil, cerrors.InvalidArgument("safe deposit box id must not be blank")
	}
	var out SafeDepositBox
	if err := c.get(ctx, BuildURL(c.baseURL, sdbPrefix, id, 0, 0), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSafeDepositBox creates box and returns it as stored, with its id
// and path filled in.
func (c *Client) CreateSafeDepositBox(ctx context.Context, box *SafeDepositBox) (*SafeDepositBox, error) {
	if box == nil {
		return nil, cerrors.InvalidArgument("safe deposit box must not be nil")
	}
	var out SafeDepositBox
	req := transport.Request{Method: http.MethodPost, URL: BuildURL(c.baseURL, sdbPrefix, "", 0, 0), Body: box}
	if err := c.call(ctx, req, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("created safe deposit box %s at %s", out.ID, out.Path)
	return &out, nil
}

// UpdateSafeDepositBox replaces the description, owner and permissions of
// the box with the given id.
func (c *Client) UpdateSafeDepositBox(ctx context.Context, id string, box *SafeDepositBox) (*SafeDepositBox, error) {
	if strings.TrimSpace(id) == "" {
		return nil, cerrors.InvalidArgument("safe deposit box id must not be blank")
	}
	if box == nil {
		return nil, cerrors.InvalidArgument("safe deposit box must not be nil")
	}
	var out SafeDepositBox
	req := transport.Request{Method: http.MethodPut, URL: BuildURL(c.baseURL, sdbPrefix, id, 0, 0), Body: box}
	if err := c.call(ctx, req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSafeDepositBox deletes the box with the given id and everything in
// it.
func (c *Client) DeleteSafeDepositBox(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return cerrors.InvalidArgument("safe deposit box id must not be blank")
	}
	req := transport.Request{Method: http.MethodDelete, URL: BuildURL(c.baseURL, sdbPrefix, id, 0, 0)}
	return c.call(ctx, req, http.StatusOK, nil)
}

// GetMetadata returns one page of metadata about every safe deposit box.
// It requires an admin token.
func (c *Client) GetMetadata(ctx context.Context, limit, offset int) (*Metadata, error) {
	var out Metadata
	if err := c.get(ctx, BuildURL(c.baseURL, metadataPrefix, "", limit, offset), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
