package cerberus_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/cerberus-go/pkg/cerberus"
	cerrors "github.com/systmms/cerberus-go/pkg/errors"
)

func TestCategoriesAndRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newTestClient(t)

	categories, err := client.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Applications", categories[0].DisplayName)

	id, err := client.CategoryIDByPath(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "cat-shared", id)

	_, err = client.CategoryIDByPath(ctx, "missing")
	assert.True(t, cerrors.IsClientError(err))

	roles, err := client.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 3)

	id, err = client.RoleIDByName(ctx, "Owner")
	require.NoError(t, err)
	assert.Equal(t, "role-owner", id)

	_, err = client.RoleIDByName(ctx, "superuser")
	assert.True(t, cerrors.IsClientError(err))
}

func TestSafeDepositBoxLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, _ := newTestClient(t)

	created, err := client.CreateSafeDepositBox(ctx, &cerberus.SafeDepositBox{
		Name:        "Payments API",
		CategoryID:  "cat-app",
		Description: "payment secrets",
		Owner:       "Lst-payments",
		IAMPrincipalPermissions: []cerberus.IAMPrincipalPermission{
			{IAMPrincipalARN: "arn:aws:iam::123456789012:role/payments", RoleID: "role-read"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "app/payments-api/", created.Path)
	require.NotNil(t, created.CreatedTS)

	boxes, err := client.ListSafeDepositBoxes(ctx)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, created.ID, boxes[0].ID)

	created.Description = "payment provider credentials"
	updated, err := client.UpdateSafeDepositBox(ctx, created.ID, created)
	require.NoError(t, err)
	assert.Equal(t, "payment provider credentials", updated.Description)

	got, err := client.GetSafeDepositBox(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "payment provider credentials", got.Description)
	require.Len(t, got.IAMPrincipalPermissions, 1)
	assert.Equal(t, "role-read", got.IAMPrincipalPermissions[0].RoleID)

	require.NoError(t, client.DeleteSafeDepositBox(ctx, created.ID))

	_, err = client.GetSafeDepositBox(ctx, created.ID)
	var apiErr *cerrors.ServerAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.ErrorID)
	require.Len(t, apiErr.Errors, 1)
	assert.Equal(t, 99228, apiErr.Errors[0].Code)
	assert.True(t, cerrors.IsNotFound(err))
}

func TestCreateSafeDepositBox_Rejected(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t)

	_, err := client.CreateSafeDepositBox(context.Background(), &cerberus.SafeDepositBox{CategoryID: "cat-app"})
	var apiErr *cerrors.ServerAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"The safe deposit box name may not be blank."}, apiErr.Messages())

	_, err = client.CreateSafeDepositBox(context.Background(), nil)
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
}

func TestSafeDepositBox_BlankID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, server := newTestClient(t)

	_, err := client.GetSafeDepositBox(ctx, " ")
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	_, err = client.UpdateSafeDepositBox(ctx, "", &cerberus.SafeDepositBox{})
	assert.ErrorIs(t, err, cerrors.ErrInvalidArgument)
	assert.ErrorIs(t, client.DeleteSafeDepositBox(ctx, ""), cerrors.ErrInvalidArgument)
	assert.Equal(t, 0, server.Requests())
}

func TestGetMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client, server := newTestClient(t)

	server.PutSDB("Alpha", "cat-app")
	server.PutSDB("Beta", "cat-shared")
	server.PutSDB("Gamma", "cat-app")

	page, err := client.GetMetadata(ctx, 2, 0)
	require.NoError(t, err)
	assert.True(t, page.HasNext)
	assert.Equal(t, 3, page.TotalSDBCount)
	require.Len(t, page.Boxes, 2)
	assert.Equal(t, "Applications", page.Boxes[0].Category)

	rest, err := client.GetMetadata(ctx, 2, page.NextOffset)
	require.NoError(t, err)
	assert.False(t, rest.HasNext)
	require.Len(t, rest.Boxes, 1)
	assert.Equal(t, "Gamma", rest.Boxes[0].Name)
	assert.Equal(t, "shared/beta/", page.Boxes[1].Path)
}
