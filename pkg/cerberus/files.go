package cerberus

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
	"github.com/systmms/cerberus-go/pkg/transport"
)

// fileField is the multipart field a secure file is uploaded in.
const fileField = "file-content"

// ListFiles returns one page of the secure files under prefix.
func (c *Client) ListFiles(ctx context.Context, prefix string, limit, offset int) (*FileList, error) {
	var out FileList
	if err := c.get(ctx, BuildURL(c.baseURL, fileListPrefix, prefix, limit, offset), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadFile downloads the secure file at filePath.
func (c *Client) ReadFile(ctx context.Context, filePath string) (*File, error) {
	req := transport.Request{Method: http.MethodGet, URL: BuildURL(c.baseURL, filePrefix, filePath, 0, 0)}
	resp, err := c.send(ctx, req, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cerrors.NewClientError("failed to read secure file "+filePath, err)
	}

	return &File{
		Name:        fileName(resp.Header.Get("Content-Disposition"), filePath),
		ContentType: resp.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

// fileName prefers the name in Content-Disposition over the last path
// segment.
func fileName(disposition, filePath string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return path.Base(strings.Trim(filePath, "/"))
}

// WriteFile uploads content to filePath, replacing any existing file.
func (c *Client) WriteFile(ctx context.Context, filePath string, content []byte) error {
	name := path.Base(strings.Trim(filePath, "/"))
	if name == "." || name == "" {
		return cerrors.InvalidArgument("secure file path %q has no file name", filePath)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile(fileField, name)
	if err != nil {
		return cerrors.NewClientError("failed to build secure file upload", err)
	}
	if _, err := part.Write(content); err != nil {
		return cerrors.NewClientError("failed to build secure file upload", err)
	}
	if err := form.Close(); err != nil {
		return cerrors.NewClientError("failed to build secure file upload", err)
	}

	req := transport.Request{
		Method:      http.MethodPost,
		URL:         BuildURL(c.baseURL, filePrefix, filePath, 0, 0),
		RawBody:     buf.Bytes(),
		ContentType: form.FormDataContentType(),
	}
	return c.call(ctx, req, http.StatusNoContent, nil)
}

// DeleteFile removes the secure file at filePath.
func (c *Client) DeleteFile(ctx context.Context, filePath string) error {
	req := transport.Request{Method: http.MethodDelete, URL: BuildURL(c.baseURL, filePrefix, filePath, 0, 0)}
	return c.call(ctx, req, http.StatusNoContent, nil)
}
