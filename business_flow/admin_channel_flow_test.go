package businessflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAdminChannelFlow_ListChannels(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	chs := f.repo.Seed(5)
	_, err := f.pool.Assign(ctx, chs[3].ID, "tenant-a")
	require.NoError(t, err)

	flow := NewAdminChannelFlow(f.pool, f.audit, 10, 5)

	t.Run("paginates in id order", func(t *testing.T) {
		resp, err := flow.ListChannels(ctx, &dto.AdminListChannelsRequest{Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, chs[2].ID, resp.Items[0].ID)
		assert.Equal(t, chs[3].ID, resp.Items[1].ID)
		assert.Equal(t, int64(5), resp.Pagination.Total)
		assert.Equal(t, 3, resp.Pagination.TotalPages)
	})

	t.Run("defaults", func(t *testing.T) {
		resp, err := flow.ListChannels(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, resp.Items, 5)
		assert.Equal(t, 1, resp.Pagination.Page)
		assert.Equal(t, defaultAdminPageSize, resp.Pagination.PageSize)
	})

	t.Run("filters by assignment", func(t *testing.T) {
		resp, err := flow.ListChannels(ctx, &dto.AdminListChannelsRequest{Assigned: utils.ToPtr(true)})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, "tenant-a", *resp.Items[0].AssignedTenant)
	})

	t.Run("filters by tenant and status", func(t *testing.T) {
		resp, err := flow.ListChannels(ctx, &dto.AdminListChannelsRequest{
			Tenant: utils.ToPtr(" tenant-a "),
			Status: utils.ToPtr("DISCONNECTED"),
		})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, chs[3].ID, resp.Items[0].ID)
	})
}

func TestAdminChannelFlow_EnsurePool(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	flow := NewAdminChannelFlow(f.pool, f.audit, 4, 2)

	resp, err := flow.EnsurePool(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Requested)
	assert.Equal(t, 4, resp.Created)
	assert.Equal(t, int64(4), resp.Stats.Available)
	assert.Equal(t, 4, resp.Stats.TargetSize)
	assert.Equal(t, 2, resp.Stats.RefillThreshold)

	resp, err = flow.EnsurePool(ctx, &dto.AdminEnsurePoolRequest{Target: utils.ToPtr(6)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Requested)
	assert.Equal(t, int64(6), resp.Stats.Total)

	_, err = flow.EnsurePool(ctx, &dto.AdminEnsurePoolRequest{Target: utils.ToPtr(-3)})
	assert.True(t, IsInvalidPoolTarget(err))
}

func TestAdminChannelFlow_RefreshAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	ch := f.repo.Seed(1)[0]
	flow := NewAdminChannelFlow(f.pool, f.audit, 1, 0)

	f.gateway.SetState(ch.Name, "FAILED", nil)
	refreshed, err := flow.RefreshChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", refreshed.Status)
	assert.NotNil(t, refreshed.LastChecked)

	assert.False(t, refreshed.Stale)

	f.gateway.StatusErr = ErrGatewayUnreachable
	stale, err := flow.RefreshChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, "failed", stale.Status)
	assert.Equal(t, refreshed.LastChecked, stale.LastChecked)

	_, err = flow.RefreshChannel(ctx, 999)
	assert.True(t, IsChannelNotFound(err))

	deleted, err := flow.DeleteChannel(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, deleted.ID)
	assert.True(t, deleted.RemoteStopped)

	_, err = flow.DeleteChannel(ctx, ch.ID)
	assert.True(t, IsChannelNotFound(err))
}

func TestAdminChannelFlow_AuditLog(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	chs := f.repo.Seed(2)
	flow := NewAdminChannelFlow(f.pool, f.audit, 2, 1)

	ok, err := f.pool.Assign(ctx, chs[0].ID, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.pool.Release(ctx, "tenant-a")
	require.NoError(t, err)
	ok, err = f.pool.Assign(ctx, chs[1].ID, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("channel history newest first", func(t *testing.T) {
		resp, err := flow.ChannelAuditLog(ctx, chs[0].ID, nil)
		require.NoError(t, err)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, models.AuditActionChannelReleased, resp.Items[0].Action)
		assert.Equal(t, models.AuditActionChannelAssigned, resp.Items[1].Action)
		assert.True(t, resp.Items[0].Success)
		assert.Equal(t, int64(2), resp.Pagination.Total)
	})

	t.Run("tenant history spans channels", func(t *testing.T) {
		resp, err := flow.TenantAuditLog(ctx, " tenant-a ", &dto.AdminAuditLogRequest{Page: 1, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, chs[1].ID, *resp.Items[0].ChannelID)
		assert.Equal(t, chs[0].ID, *resp.Items[1].ChannelID)
		assert.Equal(t, int64(3), resp.Pagination.Total)
		assert.Equal(t, 2, resp.Pagination.TotalPages)

		resp, err = flow.TenantAuditLog(ctx, "tenant-a", &dto.AdminAuditLogRequest{Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, models.AuditActionChannelAssigned, resp.Items[0].Action)
	})

	t.Run("unknown tenant is empty", func(t *testing.T) {
		resp, err := flow.TenantAuditLog(ctx, "nobody", nil)
		require.NoError(t, err)
		assert.Empty(t, resp.Items)
		assert.Equal(t, int64(0), resp.Pagination.Total)
	})

	t.Run("tenant is required", func(t *testing.T) {
		_, err := flow.TenantAuditLog(ctx, " ", nil)
		assert.True(t, IsTenantRequired(err))
	})

	t.Run("store failure", func(t *testing.T) {
		f.audit.Err = errors.New("db down")
		defer func() { f.audit.Err = nil }()
		_, err := flow.ChannelAuditLog(ctx, chs[0].ID, nil)
		require.Error(t, err)
	})
}

func TestAdminChannelFlow_ExportChannels(t *testing.T) {
	ctx := context.Background()
	f := newPoolFixture(t)
	chs := f.repo.Seed(3)
	_, err := f.pool.Assign(ctx, chs[1].ID, "tenant-b")
	require.NoError(t, err)
	flow := NewAdminChannelFlow(f.pool, f.audit, 3, 1)

	filename, data, err := flow.ExportChannels(ctx, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "channels_"))
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer xl.Close()

	rows, err := xl.GetRows(exportSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "name", rows[0][2])
	assert.Equal(t, chs[0].Name, rows[1][2])
	assert.Equal(t, "tenant-b", rows[2][4])
	assert.Equal(t, "disconnected", rows[3][5])
}
