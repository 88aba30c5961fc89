package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirphl/wa-pool/app/services"
	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/repository"
	"github.com/amirphl/wa-pool/utils"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const channelNameAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// ChannelPool owns the pool of pre-provisioned gateway channels.
// It is stateless; mutual exclusion between replicas comes from the registry's
// conditional updates, never from an in-process lock.
type ChannelPool interface {
	// EnsurePoolSize provisions channels in parallel until target are available.
	// Units fail independently and are not retried; inspect the result or GetPoolStats.
	EnsurePoolSize(ctx context.Context, target int) (*ProvisionResult, error)
	GetPoolStats(ctx context.Context) (*models.PoolStats, error)
	// GetAvailableChannel returns an unassigned pool channel not in exclude, or nil
	GetAvailableChannel(ctx context.Context, exclude ...uint) (*models.Channel, error)
	// Assign binds the channel to tenantID only if it is still free. False means the race was lost.
	Assign(ctx context.Context, channelID uint, tenantID string) (bool, error)
	// GetTenantChannel returns the tenant's pool channel, or nil
	GetTenantChannel(ctx context.Context, tenantID string) (*models.Channel, error)
	// Release returns the tenant's channel to the pool. Releasing nothing is not an error.
	Release(ctx context.Context, tenantID string) (bool, error)
	// RefreshStatus reconciles one channel against the gateway. On gateway failure the
	// stored record is left as is and returned together with the error.
	RefreshStatus(ctx context.Context, channelID uint) (*models.Channel, error)
	// DeleteChannel stops the remote session best-effort, then deletes the record unconditionally
	DeleteChannel(ctx context.Context, channelID uint) (*DeleteResult, error)
	ListChannels(ctx context.Context, filter models.ChannelFilter, limit, offset int) ([]*models.Channel, int64, error)
}

// ProvisionResult summarizes one EnsurePoolSize round
type ProvisionResult struct {
	Target    int
	Available int64
	Requested int
	Created   int
	Failed    int
}

// DeleteResult reports the side effects of a hard delete
type DeleteResult struct {
	RemoteStopped  bool
	ReleasedTenant bool
}

// ChannelPoolImpl implements ChannelPool
type ChannelPoolImpl struct {
	channelRepo repository.ChannelRepository
	gateway     services.GatewayClient
	audit       auditRecorder
	logger      zerolog.Logger

	newName func() (string, error)
	now     func() time.Time
}

// NewChannelPool creates a channel pool; auditRepo may be nil
func NewChannelPool(
	channelRepo repository.ChannelRepository,
	auditRepo repository.AuditLogRepository,
	gateway services.GatewayClient,
	logger zerolog.Logger,
) ChannelPool {
	logger = logger.With().Str("component", "channel_pool").Logger()
	return &ChannelPoolImpl{
		channelRepo: channelRepo,
		gateway:     gateway,
		audit:       auditRecorder{repo: auditRepo, logger: logger},
		logger:      logger,
		newName:     generateChannelName,
		now:         utils.UTCNow,
	}
}

func generateChannelName() (string, error) {
	id, err := gonanoid.Generate(channelNameAlphabet, 12)
	if err != nil {
		return "", err
	}
	return utils.ChannelNamePrefix + id, nil
}

func (p *ChannelPoolImpl) EnsurePoolSize(ctx context.Context, target int) (*ProvisionResult, error) {
	if target < 0 {
		return nil, NewBusinessErrorf("INVALID_POOL_TARGET", "Invalid pool target %d", ErrInvalidPoolTarget, target)
	}

	stats, err := p.GetPoolStats(ctx)
	if err != nil {
		return nil, err
	}

	result := &ProvisionResult{Target: target, Available: stats.Available}
	if stats.Available >= int64(target) {
		return result, nil
	}

	deficit := target - int(stats.Available)
	result.Requested = deficit

	var (
		wg      sync.WaitGroup
		created atomic.Int64
		failed  atomic.Int64
	)
	for i := 0; i < deficit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.provisionOne(ctx); err != nil {
				failed.Add(1)
				p.logger.Warn().Err(err).Msg("channel provisioning unit failed")
				return
			}
			created.Add(1)
		}()
	}
	wg.Wait()

	result.Created = int(created.Load())
	result.Failed = int(failed.Load())

	p.logger.Info().
		Int("target", target).
		Int("requested", result.Requested).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("pool provisioning finished")

	return result, nil
}

// provisionOne starts one remote session and records it as a free pool channel
func (p *ChannelPoolImpl) provisionOne(ctx context.Context) error {
	name, err := p.newName()
	if err != nil {
		provisionTotal.WithLabelValues("name_error").Inc()
		return fmt.Errorf("generate channel name: %w", err)
	}

	if err := p.gateway.StartSession(ctx, name); err != nil {
		provisionTotal.WithLabelValues("gateway_error").Inc()
		return fmt.Errorf("start session %s: %w", name, err)
	}

	now := p.now()
	channel := &models.Channel{
		UUID:      uuid.New(),
		Name:      name,
		PoolOwned: true,
		Status:    models.ChannelStatusDisconnected,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.channelRepo.Save(ctx, channel); err != nil {
		provisionTotal.WithLabelValues("store_error").Inc()
		if stopErr := p.gateway.StopSession(ctx, name); stopErr != nil {
			p.logger.Warn().Err(stopErr).Str("channel", name).Msg("failed to stop orphaned session")
		}
		return fmt.Errorf("save channel %s: %w", name, err)
	}

	provisionTotal.WithLabelValues("created").Inc()
	p.audit.record(ctx, auditEntry{
		action:      models.AuditActionChannelProvisioned,
		channelID:   &channel.ID,
		description: "Channel provisioned into pool",
		metadata:    map[string]any{"name": name},
	})
	return nil
}

func (p *ChannelPoolImpl) GetPoolStats(ctx context.Context) (*models.PoolStats, error) {
	stats, err := p.channelRepo.Stats(ctx)
	if err != nil {
		return nil, NewBusinessError("POOL_STATS_FAILED", "Failed to read pool stats", err)
	}
	observePoolStats(stats)
	return stats, nil
}

func (p *ChannelPoolImpl) GetAvailableChannel(ctx context.Context, exclude ...uint) (*models.Channel, error) {
	channel, err := p.channelRepo.FirstAvailable(ctx, exclude)
	if err != nil {
		return nil, NewBusinessError("AVAILABLE_CHANNEL_LOOKUP_FAILED", "Failed to look up an available channel", err)
	}
	return channel, nil
}

func (p *ChannelPoolImpl) Assign(ctx context.Context, channelID uint, tenantID string) (bool, error) {
	if err := checkTenantID(tenantID); err != nil {
		return false, err
	}

	ok, err := p.channelRepo.AssignTenant(ctx, channelID, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrTenantAlreadyAssigned) {
			return false, err
		}
		return false, NewBusinessError("CHANNEL_ASSIGN_FAILED", "Failed to assign channel", err)
	}
	if !ok {
		assignConflictsTotal.Inc()
		p.logger.Debug().Uint("channel_id", channelID).Str("tenant", tenantID).Msg("assignment lost race")
		return false, nil
	}

	p.audit.record(ctx, auditEntry{
		action:      models.AuditActionChannelAssigned,
		channelID:   &channelID,
		tenantID:    &tenantID,
		description: "Channel assigned to tenant",
	})
	return true, nil
}

func (p *ChannelPoolImpl) GetTenantChannel(ctx context.Context, tenantID string) (*models.Channel, error) {
	if err := checkTenantID(tenantID); err != nil {
		return nil, err
	}
	channel, err := p.channelRepo.ByTenant(ctx, tenantID)
	if err != nil {
		return nil, NewBusinessError("TENANT_CHANNEL_LOOKUP_FAILED", "Failed to look up tenant channel", err)
	}
	return channel, nil
}

func (p *ChannelPoolImpl) Release(ctx context.Context, tenantID string) (bool, error) {
	if err := checkTenantID(tenantID); err != nil {
		return false, err
	}

	channelID, released, err := p.channelRepo.ReleaseTenant(ctx, tenantID)
	if err != nil {
		return false, NewBusinessError("CHANNEL_RELEASE_FAILED", "Failed to release channel", err)
	}
	if !released {
		return false, nil
	}

	p.audit.record(ctx, auditEntry{
		action:      models.AuditActionChannelReleased,
		channelID:   &channelID,
		tenantID:    &tenantID,
		description: "Channel returned to pool",
	})
	return true, nil
}

// checkTenantID rejects ids the registry cannot store
func checkTenantID(tenantID string) error {
	if tenantID == "" {
		return NewBusinessError("TENANT_REQUIRED", "Tenant ID is required", ErrTenantRequired)
	}
	if len(tenantID) > utils.MaxTenantIDLength {
		return NewBusinessErrorf("INVALID_TENANT_ID", "Tenant ID must be at most %d characters", ErrTenantIDTooLong, utils.MaxTenantIDLength)
	}
	return nil
}

func (p *ChannelPoolImpl) RefreshStatus(ctx context.Context, channelID uint) (*models.Channel, error) {
	channel, err := p.channelRepo.ByID(ctx, channelID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to load channel", err)
	}
	if channel == nil {
		return nil, NewBusinessErrorf("CHANNEL_NOT_FOUND", "Channel %d not found", ErrChannelNotFound, channelID)
	}

	remote, err := p.gateway.GetSessionStatus(ctx, channel.Name)
	if err != nil {
		statusChecksTotal.WithLabelValues("gateway_error").Inc()
		p.logger.Warn().Err(err).Str("channel", channel.Name).Msg("status check failed, keeping stored state")
		return channel, NewBusinessError(codeGatewayStatusFailed, "Failed to query gateway session status", err)
	}

	status := MapGatewayState(remote.State)
	checkedAt := p.now()
	if err := p.channelRepo.UpdateStatus(ctx, channel.ID, status, remote.Identity, checkedAt); err != nil {
		statusChecksTotal.WithLabelValues("store_error").Inc()
		return channel, NewBusinessError("CHANNEL_STATUS_UPDATE_FAILED", "Failed to persist channel status", err)
	}
	statusChecksTotal.WithLabelValues("ok").Inc()

	if channel.Status != status {
		p.logger.Info().
			Str("channel", channel.Name).
			Str("from", string(channel.Status)).
			Str("to", string(status)).
			Str("raw_state", remote.State).
			Msg("channel status changed")
	}

	channel.Status = status
	if remote.Identity != nil {
		channel.PhoneNumber = remote.Identity
	}
	channel.LastChecked = &checkedAt
	return channel, nil
}

func (p *ChannelPoolImpl) DeleteChannel(ctx context.Context, channelID uint) (*DeleteResult, error) {
	channel, err := p.channelRepo.ByID(ctx, channelID)
	if err != nil {
		return nil, NewBusinessError("CHANNEL_LOOKUP_FAILED", "Failed to load channel", err)
	}
	if channel == nil {
		return nil, NewBusinessErrorf("CHANNEL_NOT_FOUND", "Channel %d not found", ErrChannelNotFound, channelID)
	}

	result := &DeleteResult{ReleasedTenant: channel.IsAssigned()}

	if err := p.gateway.StopSession(ctx, channel.Name); err != nil {
		p.logger.Warn().Err(err).Str("channel", channel.Name).Msg("remote stop failed, deleting local record anyway")
	} else {
		result.RemoteStopped = true
	}

	if _, err := p.channelRepo.Delete(ctx, channel.ID); err != nil {
		return nil, NewBusinessError("CHANNEL_DELETE_FAILED", "Failed to delete channel", err)
	}

	p.audit.record(ctx, auditEntry{
		action:      models.AuditActionChannelDeleted,
		channelID:   &channel.ID,
		tenantID:    channel.AssignedTenant,
		description: "Channel deleted",
		metadata:    map[string]any{"name": channel.Name, "remote_stopped": result.RemoteStopped},
	})
	return result, nil
}

func (p *ChannelPoolImpl) ListChannels(ctx context.Context, filter models.ChannelFilter, limit, offset int) ([]*models.Channel, int64, error) {
	channels, err := p.channelRepo.ByFilter(ctx, filter, "id ASC", limit, offset)
	if err != nil {
		return nil, 0, NewBusinessError("CHANNEL_LIST_FAILED", "Failed to list channels", err)
	}
	total, err := p.channelRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, NewBusinessError("CHANNEL_COUNT_FAILED", "Failed to count channels", err)
	}
	return channels, total, nil
}
