package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirphl/wa-pool/models"
	. "github.com/amirphl/wa-pool/repository"
	testingutil "github.com/amirphl/wa-pool/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditColumns = []string{
	"id", "channel_id", "tenant_id", "action", "description", "request_id",
	"metadata", "success", "error_message", "created_at",
}

func TestAuditLogRepository_ListByChannel(t *testing.T) {
	db, mock := testingutil.NewMockGorm(t)
	repo := NewAuditLogRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "audit_log" WHERE channel_id = \$1 ORDER BY created_at DESC LIMIT .+`).
		WillReturnRows(sqlmock.NewRows(auditColumns).
			AddRow(9, 4, "tenant-a", models.AuditActionChannelReleased, nil, nil, nil, true, nil, now).
			AddRow(8, 4, "tenant-a", models.AuditActionChannelAssigned, nil, nil, nil, true, nil, now.Add(-time.Minute)))

	logs, err := repo.ListByChannel(context.Background(), 4, 20, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionChannelReleased, logs[0].Action)
	require.NotNil(t, logs[0].ChannelID)
	assert.Equal(t, uint(4), *logs[0].ChannelID)
	assert.False(t, logs[0].IsFailed())
}

func TestAuditLogRepository_ListByTenant(t *testing.T) {
	t.Run("pages through the tenant history", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewAuditLogRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "audit_log" WHERE tenant_id = \$1 ORDER BY created_at DESC LIMIT .+ OFFSET .+`).
			WillReturnRows(sqlmock.NewRows(auditColumns).
				AddRow(3, nil, "tenant-a", models.AuditActionConnectRejected, nil, nil, nil, false, "capacity exhausted", time.Now().UTC()))

		logs, err := repo.ListByTenant(context.Background(), "tenant-a", 10, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Nil(t, logs[0].ChannelID)
		assert.True(t, logs[0].IsFailed())
	})

	t.Run("wraps query errors", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewAuditLogRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "audit_log" WHERE tenant_id = \$1`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.ListByTenant(context.Background(), "tenant-a", 10, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to find audit logs by filter")
	})
}

func TestAuditLogRepository_Count(t *testing.T) {
	db, mock := testingutil.NewMockGorm(t)
	repo := NewAuditLogRepository(db)
	tenant := "tenant-a"

	mock.ExpectQuery(`SELECT count\(\*\) FROM "audit_log" WHERE tenant_id = \$1`).
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := repo.Count(context.Background(), models.AuditLogFilter{TenantID: &tenant})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
