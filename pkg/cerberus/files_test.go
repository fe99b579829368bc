package cerberus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

func TestFiles_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newTestClient(t)

	content := []byte("-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n")
	require.NoError(t, client.WriteFile(ctx, "app/my-sdb/certs/server.pem", content))
	require.NoError(t, client.WriteFile(ctx, "app/my-sdb/certs/ca.pem", []byte("ca")))

	file, err := client.ReadFile(ctx, "app/my-sdb/certs/server.pem")
	require.NoError(t, err)
	assert.Equal(t, "server.pem", file.Name)
	assert.Equal(t, "application/octet-stream", file.ContentType)
	assert.Equal(t, content, file.Content)

	list, err := client.ListFiles(ctx, "app/my-sdb", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, list.TotalFileCount)
	require.Len(t, list.Summaries, 2)
	assert.Equal(t, "ca.pem", list.Summaries[0].Name)
	assert.Equal(t, len(content), list.Summaries[1].SizeInBytes)

	page, err := client.ListFiles(ctx, "app/my-sdb", 1, 0)
	require.NoError(t, err)
	assert.Len(t, page.Summaries, 1)
	assert.True(t, page.HasNext)
	assert.Equal(t, 1, page.NextOffset)

	require.NoError(t, client.DeleteFile(ctx, "app/my-sdb/certs/server.pem"))
	_, err = client.ReadFile(ctx, "app/my-sdb/certs/server.pem")
	assert.True(t, cerrors.IsNotFound(err))
}

func TestWriteFile_RequiresName(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	err := client.WriteFile(context.Background(), "/", []byte("x"))
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.Equal(t, 0, server.Requests())
}
