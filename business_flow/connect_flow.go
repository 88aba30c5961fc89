package businessflow

import (
	"context"
	"errors"
	"strings"

	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/repository"
	"github.com/amirphl/wa-pool/utils"
	"github.com/rs/zerolog"
)

// RefillTrigger schedules a low-watermark check off the request path.
// Trigger must not block; it reports whether the request was queued.
type RefillTrigger interface {
	Trigger(reason string) bool
}

// ConnectFlow is the tenant-facing channel lifecycle
type ConnectFlow interface {
	Connect(ctx context.Context, tenantID string, req *dto.ConnectChannelRequest) (*dto.ConnectChannelResponse, error)
	Disconnect(ctx context.Context, tenantID string) (*dto.DisconnectChannelResponse, error)
	Status(ctx context.Context, tenantID string) (*dto.ChannelStatusResponse, error)
}

// ConnectFlowImpl implements ConnectFlow
type ConnectFlowImpl struct {
	pool           ChannelPool
	refill         RefillTrigger
	audit          auditRecorder
	logger         zerolog.Logger
	assignAttempts int
	codeIssuer     codeIssuer
}

// codeIssuer fetches a QR payload or a pairing code for a session
type codeIssuer interface {
	GetQRCode(ctx context.Context, name string) (string, error)
	GetPairingCode(ctx context.Context, name, phoneNumber string) (string, error)
}

// NewConnectFlow creates the connect flow; refill and auditRepo may be nil
func NewConnectFlow(
	pool ChannelPool,
	gateway codeIssuer,
	refill RefillTrigger,
	auditRepo repository.AuditLogRepository,
	assignAttempts int,
	logger zerolog.Logger,
) ConnectFlow {
	if assignAttempts < 1 {
		assignAttempts = utils.DefaultAssignAttempts
	}
	logger = logger.With().Str("component", "connect_flow").Logger()
	return &ConnectFlowImpl{
		pool:           pool,
		refill:         refill,
		audit:          auditRecorder{repo: auditRepo, logger: logger},
		logger:         logger,
		assignAttempts: assignAttempts,
		codeIssuer:     gateway,
	}
}

func (f *ConnectFlowImpl) Connect(ctx context.Context, tenantID string, req *dto.ConnectChannelRequest) (*dto.ConnectChannelResponse, error) {
	tenantID = strings.TrimSpace(tenantID)
	if err := checkTenantID(tenantID); err != nil {
		return nil, err
	}
	if req == nil {
		req = &dto.ConnectChannelRequest{}
	}

	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		method = dto.ConnectMethodQR
	}
	if method != dto.ConnectMethodQR && method != dto.ConnectMethodCode {
		return nil, NewBusinessError("INVALID_CONNECT_METHOD", "Connect method must be qr or code", ErrInvalidConnectMethod)
	}
	phone := strings.TrimSpace(utils.Deref(req.PhoneNumber))
	if method == dto.ConnectMethodCode && phone == "" {
		return nil, NewBusinessError("PHONE_NUMBER_REQUIRED", "Phone number is required for pairing code", ErrPhoneNumberRequired)
	}

	channel, reused, err := f.acquire(ctx, tenantID)
	if err != nil {
		if IsCapacityExhausted(err) {
			f.audit.record(ctx, auditEntry{
				action:      models.AuditActionConnectRejected,
				tenantID:    &tenantID,
				description: "No channel capacity available",
				err:         err,
			})
		}
		f.triggerRefill("connect")
		return nil, err
	}
	// any successful acquisition may have drained the pool
	defer f.triggerRefill("connect")

	code, err := f.issueCode(ctx, channel.Name, method, phone)
	if err != nil {
		// the assignment stays; the tenant retries connect and reuses it
		f.logger.Warn().Err(err).Str("tenant", tenantID).Str("channel", channel.Name).Msg("failed to issue link code")
		return nil, NewBusinessError("LINK_CODE_FAILED", "Failed to obtain a link code from the gateway", err)
	}

	f.audit.record(ctx, auditEntry{
		action:      models.AuditActionConnectRequested,
		channelID:   &channel.ID,
		tenantID:    &tenantID,
		description: "Link code issued",
		metadata:    map[string]any{"method": method, "reused": reused},
	})

	return &dto.ConnectChannelResponse{
		Method:      method,
		Code:        code,
		ChannelName: channel.Name,
		Reused:      reused,
	}, nil
}

// acquire returns the tenant's existing channel or claims a free one with bounded retries
func (f *ConnectFlowImpl) acquire(ctx context.Context, tenantID string) (*models.Channel, bool, error) {
	existing, err := f.pool.GetTenantChannel(ctx, tenantID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	var exclude []uint
	for attempt := 0; attempt < f.assignAttempts; attempt++ {
		candidate, err := f.pool.GetAvailableChannel(ctx, exclude...)
		if err != nil {
			return nil, false, err
		}
		if candidate == nil {
			return nil, false, NewBusinessError("CAPACITY_EXHAUSTED", "No channel available", ErrCapacityExhausted)
		}

		ok, err := f.pool.Assign(ctx, candidate.ID, tenantID)
		if err != nil {
			if !errors.Is(err, repository.ErrTenantAlreadyAssigned) {
				return nil, false, err
			}
			// a concurrent connect for the same tenant won; use its channel
			existing, lookupErr := f.pool.GetTenantChannel(ctx, tenantID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, true, nil
			}
			exclude = append(exclude, candidate.ID)
			continue
		}
		if !ok {
			exclude = append(exclude, candidate.ID)
			continue
		}

		tenant := tenantID
		candidate.AssignedTenant = &tenant
		return candidate, false, nil
	}

	f.logger.Warn().Str("tenant", tenantID).Int("attempts", f.assignAttempts).Msg("assignment retries exhausted")
	return nil, false, NewBusinessError("CAPACITY_EXHAUSTED", "No channel available after retries", errors.Join(ErrCapacityExhausted, ErrAssignmentConflict))
}

func (f *ConnectFlowImpl) issueCode(ctx context.Context, name, method, phone string) (string, error) {
	if method == dto.ConnectMethodCode {
		return f.codeIssuer.GetPairingCode(ctx, name, phone)
	}
	return f.codeIssuer.GetQRCode(ctx, name)
}

func (f *ConnectFlowImpl) triggerRefill(reason string) {
	if f.refill == nil {
		return
	}
	if !f.refill.Trigger(reason) {
		f.logger.Debug().Str("reason", reason).Msg("refill already pending")
	}
}

func (f *ConnectFlowImpl) Disconnect(ctx context.Context, tenantID string) (*dto.DisconnectChannelResponse, error) {
	tenantID = strings.TrimSpace(tenantID)
	released, err := f.pool.Release(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &dto.DisconnectChannelResponse{Released: released}, nil
}

func (f *ConnectFlowImpl) Status(ctx context.Context, tenantID string) (*dto.ChannelStatusResponse, error) {
	tenantID = strings.TrimSpace(tenantID)
	channel, err := f.pool.GetTenantChannel(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return &dto.ChannelStatusResponse{
			Connected: false,
			Status:    string(models.ChannelStatusDisconnected),
		}, nil
	}

	refreshed, err := f.pool.RefreshStatus(ctx, channel.ID)
	if err != nil {
		f.logger.Debug().Err(err).Str("tenant", tenantID).Msg("status refresh failed, serving stored state")
	}
	if refreshed != nil {
		channel = refreshed
	}

	name := channel.Name
	return &dto.ChannelStatusResponse{
		Connected:   channel.Status == models.ChannelStatusConnected,
		Status:      string(channel.Status),
		ChannelName: &name,
		PhoneNumber: channel.PhoneNumber,
		LastChecked: utils.FormatTimePtr(channel.LastChecked),
	}, nil
}
