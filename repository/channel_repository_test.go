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
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var channelColumns = []string{
	"id", "uuid", "name", "pool_owned", "assigned_tenant", "status",
	"phone_number", "last_checked", "created_at", "updated_at",
}

func TestChannelRepository_AssignTenant(t *testing.T) {
	assignSQL := `UPDATE "channels" SET .+ WHERE id = .+ AND pool_owned = .+ AND assigned_tenant IS NULL`

	t.Run("wins when the row is still unassigned", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(assignSQL).
			WithArgs("tenant-a", sqlmock.AnyArg(), 7, true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.AssignTenant(context.Background(), 7, "tenant-a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("loses when another caller already claimed it", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(assignSQL).
			WithArgs("tenant-b", sqlmock.AnyArg(), 7, true).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := repo.AssignTenant(context.Background(), 7, "tenant-b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("maps unique violation on tenant", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(assignSQL).WillReturnError(gorm.ErrDuplicatedKey)
		mock.ExpectRollback()

		ok, err := repo.AssignTenant(context.Background(), 8, "tenant-a")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrTenantAlreadyAssigned)
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(assignSQL).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		_, err := repo.AssignTenant(context.Background(), 9, "tenant-a")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrTenantAlreadyAssigned)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestChannelRepository_ReleaseTenant(t *testing.T) {
	const releaseSQL = `UPDATE "channels" SET "assigned_tenant"=\$1,"status"=\$2,"updated_at"=\$3 WHERE assigned_tenant = \$4 AND pool_owned = \$5 RETURNING "id"`

	t.Run("returns the released channel id", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(releaseSQL).
			WithArgs(nil, "disconnected", sqlmock.AnyArg(), "tenant-a", true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
		mock.ExpectCommit()

		id, released, err := repo.ReleaseTenant(context.Background(), "tenant-a")
		require.NoError(t, err)
		assert.True(t, released)
		assert.Equal(t, uint(4), id)
	})

	t.Run("tenant without a channel", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(releaseSQL).
			WithArgs(nil, "disconnected", sqlmock.AnyArg(), "tenant-b", true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()

		id, released, err := repo.ReleaseTenant(context.Background(), "tenant-b")
		require.NoError(t, err)
		assert.False(t, released)
		assert.Zero(t, id)
	})
}

func TestChannelRepository_UpdateStatus(t *testing.T) {
	t.Run("writes status, phone and check time", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)
		checked := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "channels" SET "last_checked"=\$1,"phone_number"=\$2,"status"=\$3,"updated_at"=\$4 WHERE id = \$5`).
			WithArgs(checked, "989121234567", "connected", sqlmock.AnyArg(), 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		phone := "989121234567"
		err := repo.UpdateStatus(context.Background(), 3, models.ChannelStatusConnected, &phone, checked)
		require.NoError(t, err)
	})

	t.Run("rejects unknown status without touching the database", func(t *testing.T) {
		db, _ := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		err := repo.UpdateStatus(context.Background(), 3, models.ChannelStatus("banana"), nil, time.Now())
		assert.Error(t, err)
	})

	t.Run("missing row is an error", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "channels" SET .+ WHERE id = .+`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.UpdateStatus(context.Background(), 44, models.ChannelStatusFailed, nil, time.Now())
		assert.Error(t, err)
	})
}

func TestChannelRepository_Stats(t *testing.T) {
	db, mock := testingutil.NewMockGorm(t)
	repo := NewChannelRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total, COUNT\(\*\) FILTER \(WHERE assigned_tenant IS NULL\) AS available FROM "channels" WHERE pool_owned = \$1`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"total", "available"}).AddRow(10, 4))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(4), stats.Available)
	assert.Equal(t, int64(6), stats.Assigned)
	assert.Equal(t, stats.Total, stats.Available+stats.Assigned)
}

func TestChannelRepository_FirstAvailable(t *testing.T) {
	t.Run("returns the lowest id candidate", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)
		now := time.Now().UTC()
		id := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "channels" WHERE .*pool_owned = \$1 AND assigned_tenant IS NULL.* AND id NOT IN \(\$2,\$3\) ORDER BY id ASC LIMIT .+`).
			WillReturnRows(sqlmock.NewRows(channelColumns).
				AddRow(5, id.String(), "pool_abc", true, nil, "disconnected", nil, nil, now, now))

		ch, err := repo.FirstAvailable(context.Background(), []uint{1, 2})
		require.NoError(t, err)
		require.NotNil(t, ch)
		assert.Equal(t, uint(5), ch.ID)
		assert.Equal(t, id, ch.UUID)
		assert.False(t, ch.IsAssigned())
	})

	t.Run("returns nil when pool is empty", func(t *testing.T) {
		db, mock := testingutil.NewMockGorm(t)
		repo := NewChannelRepository(db)

		mock.ExpectQuery(`SELECT \* FROM "channels" WHERE pool_owned = \$1 AND assigned_tenant IS NULL ORDER BY id ASC`).
			WillReturnRows(sqlmock.NewRows(channelColumns))

		ch, err := repo.FirstAvailable(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, ch)
	})
}

func TestChannelRepository_ByTenant(t *testing.T) {
	db, mock := testingutil.NewMockGorm(t)
	repo := NewChannelRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT \* FROM "channels" WHERE pool_owned = \$1 AND assigned_tenant = \$2 ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows(channelColumns).
			AddRow(2, uuid.NewString(), "pool_x", true, "tenant-a", "connected", "98912", now, now, now))

	ch, err := repo.ByTenant(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "tenant-a", *ch.AssignedTenant)
	assert.Equal(t, models.ChannelStatusConnected, ch.Status)
}

func TestChannelRepository_Delete(t *testing.T) {
	db, mock := testingutil.NewMockGorm(t)
	repo := NewChannelRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "channels" WHERE id = \$1`).
		WithArgs(12).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := repo.Delete(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChannelRepository_UsesTransactionFromContext(t *testing.T) {
	db, mock := testingutil.NewMockGorm(t)
	repo := NewChannelRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE "channels" SET .+ WHERE assigned_tenant = .+ RETURNING "id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`DELETE FROM "channels" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := WithTransaction(context.Background(), db, func(txCtx context.Context) error {
		if _, _, err := repo.ReleaseTenant(txCtx, "tenant-a"); err != nil {
			return err
		}
		_, err := repo.Delete(txCtx, 1)
		return err
	})
	require.NoError(t, err)
}
