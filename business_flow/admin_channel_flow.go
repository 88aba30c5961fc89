package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/repository"
	"github.com/amirphl/wa-pool/utils"
	"github.com/xuri/excelize/v2"
)

const (
	defaultAdminPageSize = 50
	exportBatchSize      = 500
	exportSheetName      = "channels"
)

// AdminChannelFlow handles admin operations on the channel inventory
type AdminChannelFlow interface {
	ListChannels(ctx context.Context, req *dto.AdminListChannelsRequest) (*dto.AdminListChannelsResponse, error)
	GetPoolStats(ctx context.Context) (*dto.PoolStatsResponse, error)
	EnsurePool(ctx context.Context, req *dto.AdminEnsurePoolRequest) (*dto.AdminEnsurePoolResponse, error)
	RefreshChannel(ctx context.Context, channelID uint) (*dto.AdminChannelDTO, error)
	DeleteChannel(ctx context.Context, channelID uint) (*dto.AdminDeleteChannelResponse, error)
	ExportChannels(ctx context.Context, req *dto.AdminListChannelsRequest) (string, []byte, error)
	ChannelAuditLog(ctx context.Context, channelID uint, req *dto.AdminAuditLogRequest) (*dto.AdminAuditLogResponse, error)
	TenantAuditLog(ctx context.Context, tenantID string, req *dto.AdminAuditLogRequest) (*dto.AdminAuditLogResponse, error)
}

type AdminChannelFlowImpl struct {
	pool            ChannelPool
	auditRepo       repository.AuditLogRepository
	targetSize      int
	refillThreshold int
}

func NewAdminChannelFlow(pool ChannelPool, auditRepo repository.AuditLogRepository, targetSize, refillThreshold int) AdminChannelFlow {
	return &AdminChannelFlowImpl{
		pool:            pool,
		auditRepo:       auditRepo,
		targetSize:      targetSize,
		refillThreshold: refillThreshold,
	}
}

func (f *AdminChannelFlowImpl) ListChannels(ctx context.Context, req *dto.AdminListChannelsRequest) (*dto.AdminListChannelsResponse, error) {
	if req == nil {
		req = &dto.AdminListChannelsRequest{}
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = defaultAdminPageSize
	}

	channels, total, err := f.pool.ListChannels(ctx, toChannelFilter(req), pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]dto.AdminChannelDTO, 0, len(channels))
	for _, ch := range channels {
		items = append(items, ToAdminChannelDTO(*ch))
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &dto.AdminListChannelsResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	}, nil
}

func (f *AdminChannelFlowImpl) GetPoolStats(ctx context.Context) (*dto.PoolStatsResponse, error) {
	stats, err := f.pool.GetPoolStats(ctx)
	if err != nil {
		return nil, err
	}
	resp := f.toStatsResponse(stats)
	return &resp, nil
}

func (f *AdminChannelFlowImpl) EnsurePool(ctx context.Context, req *dto.AdminEnsurePoolRequest) (*dto.AdminEnsurePoolResponse, error) {
	target := f.targetSize
	if req != nil && req.Target != nil {
		target = *req.Target
	}

	result, err := f.pool.EnsurePoolSize(ctx, target)
	if err != nil {
		return nil, err
	}
	stats, err := f.pool.GetPoolStats(ctx)
	if err != nil {
		return nil, err
	}

	return &dto.AdminEnsurePoolResponse{
		Requested: result.Requested,
		Created:   result.Created,
		Failed:    result.Failed,
		Stats:     f.toStatsResponse(stats),
	}, nil
}

func (f *AdminChannelFlowImpl) RefreshChannel(ctx context.Context, channelID uint) (*dto.AdminChannelDTO, error) {
	channel, err := f.pool.RefreshStatus(ctx, channelID)
	if err != nil {
		// an unreachable gateway leaves the record as it was; serve it flagged
		if IsStaleStatus(err) && channel != nil {
			resp := ToAdminChannelDTO(*channel)
			resp.Stale = true
			return &resp, nil
		}
		return nil, err
	}
	resp := ToAdminChannelDTO(*channel)
	return &resp, nil
}

// ChannelAuditLog returns the lifecycle events of one channel, including deleted ones
func (f *AdminChannelFlowImpl) ChannelAuditLog(ctx context.Context, channelID uint, req *dto.AdminAuditLogRequest) (*dto.AdminAuditLogResponse, error) {
	page, pageSize := auditPage(req)
	rows, err := f.auditRepo.ListByChannel(ctx, channelID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOG_LIST_FAILED", "Failed to list audit log", err)
	}
	total, err := f.auditRepo.Count(ctx, models.AuditLogFilter{ChannelID: &channelID})
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOG_COUNT_FAILED", "Failed to count audit log", err)
	}
	return toAuditLogResponse(rows, total, page, pageSize), nil
}

// TenantAuditLog returns a tenant's events across every channel it held
func (f *AdminChannelFlowImpl) TenantAuditLog(ctx context.Context, tenantID string, req *dto.AdminAuditLogRequest) (*dto.AdminAuditLogResponse, error) {
	tenantID = strings.TrimSpace(tenantID)
	if err := checkTenantID(tenantID); err != nil {
		return nil, err
	}

	page, pageSize := auditPage(req)
	rows, err := f.auditRepo.ListByTenant(ctx, tenantID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOG_LIST_FAILED", "Failed to list audit log", err)
	}
	total, err := f.auditRepo.Count(ctx, models.AuditLogFilter{TenantID: &tenantID})
	if err != nil {
		return nil, NewBusinessError("AUDIT_LOG_COUNT_FAILED", "Failed to count audit log", err)
	}
	return toAuditLogResponse(rows, total, page, pageSize), nil
}

func auditPage(req *dto.AdminAuditLogRequest) (int, int) {
	page, pageSize := 1, defaultAdminPageSize
	if req != nil {
		if req.Page > 0 {
			page = req.Page
		}
		if req.PageSize > 0 {
			pageSize = req.PageSize
		}
	}
	return page, pageSize
}

func toAuditLogResponse(rows []*models.AuditLog, total int64, page, pageSize int) *dto.AdminAuditLogResponse {
	items := make([]dto.AuditLogDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToAuditLogDTO(*row))
	}
	return &dto.AdminAuditLogResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
}

func (f *AdminChannelFlowImpl) DeleteChannel(ctx context.Context, channelID uint) (*dto.AdminDeleteChannelResponse, error) {
	result, err := f.pool.DeleteChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &dto.AdminDeleteChannelResponse{
		ID:             channelID,
		RemoteStopped:  result.RemoteStopped,
		ReleasedTenant: result.ReleasedTenant,
	}, nil
}

// ExportChannels renders the filtered inventory as an xlsx workbook
func (f *AdminChannelFlowImpl) ExportChannels(ctx context.Context, req *dto.AdminListChannelsRequest) (string, []byte, error) {
	if req == nil {
		req = &dto.AdminListChannelsRequest{}
	}
	filter := toChannelFilter(req)

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), exportSheetName); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}

	header := []string{"id", "uuid", "name", "pool_owned", "assigned_tenant", "status", "phone_number", "last_checked", "created_at", "updated_at"}
	if err := xl.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	row := 2
	for offset := 0; ; offset += exportBatchSize {
		channels, _, err := f.pool.ListChannels(ctx, filter, exportBatchSize, offset)
		if err != nil {
			return "", nil, err
		}
		for _, ch := range channels {
			record := []string{
				strconv.FormatUint(uint64(ch.ID), 10),
				ch.UUID.String(),
				ch.Name,
				strconv.FormatBool(ch.PoolOwned),
				utils.Deref(ch.AssignedTenant),
				string(ch.Status),
				utils.Deref(ch.PhoneNumber),
				utils.Deref(utils.FormatTimePtr(ch.LastChecked)),
				ch.CreatedAt.UTC().Format(time.RFC3339),
				ch.UpdatedAt.UTC().Format(time.RFC3339),
			}
			cellRef, _ := excelize.CoordinatesToCellName(1, row)
			if err := xl.SetSheetRow(exportSheetName, cellRef, &record); err != nil {
				return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
			}
			row++
		}
		if len(channels) < exportBatchSize {
			break
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("channels_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

func (f *AdminChannelFlowImpl) toStatsResponse(stats *models.PoolStats) dto.PoolStatsResponse {
	return dto.PoolStatsResponse{
		Total:           stats.Total,
		Available:       stats.Available,
		Assigned:        stats.Assigned,
		TargetSize:      f.targetSize,
		RefillThreshold: f.refillThreshold,
	}
}

func toChannelFilter(req *dto.AdminListChannelsRequest) models.ChannelFilter {
	filter := models.ChannelFilter{Assigned: req.Assigned}
	if req.Status != nil && *req.Status != "" {
		status := models.ChannelStatus(strings.ToLower(*req.Status))
		filter.Status = &status
	}
	if req.Tenant != nil && strings.TrimSpace(*req.Tenant) != "" {
		tenant := strings.TrimSpace(*req.Tenant)
		filter.AssignedTenant = &tenant
	}
	return filter
}
