package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/repository"
	"github.com/google/uuid"
)

// MemoryChannelRepository is an in-process channel registry with the same
// conditional-update semantics as the postgres one. Safe for concurrent use.
type MemoryChannelRepository struct {
	mu       sync.Mutex
	nextID   uint
	channels map[uint]*models.Channel

	// SaveErr, when set, is consulted before every insert
	SaveErr func(ch *models.Channel) error
	// Err forces every call to fail, simulating an unreachable store
	Err error
}

var _ repository.ChannelRepository = (*MemoryChannelRepository)(nil)

func NewMemoryChannelRepository() *MemoryChannelRepository {
	return &MemoryChannelRepository{channels: make(map[uint]*models.Channel)}
}

// Seed inserts n free pool channels named seed_1..seed_n and returns them
func (r *MemoryChannelRepository) Seed(n int) []*models.Channel {
	out := make([]*models.Channel, 0, n)
	for i := 0; i < n; i++ {
		ch := &models.Channel{
			UUID:      uuid.New(),
			Name:      fmt.Sprintf("seed_%d", r.peekNextID()),
			PoolOwned: true,
			Status:    models.ChannelStatusDisconnected,
		}
		if err := r.Save(context.Background(), ch); err != nil {
			panic(err)
		}
		out = append(out, ch)
	}
	return out
}

// Put stores ch as is, assigning an ID when zero
func (r *MemoryChannelRepository) Put(ch *models.Channel) *models.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch.ID == 0 {
		r.nextID++
		ch.ID = r.nextID
	} else if ch.ID > r.nextID {
		r.nextID = ch.ID
	}
	r.channels[ch.ID] = cloneChannel(ch)
	return ch
}

// Snapshot returns a copy of the stored channel, or nil
func (r *MemoryChannelRepository) Snapshot(id uint) *models.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[id]; ok {
		return cloneChannel(ch)
	}
	return nil
}

func (r *MemoryChannelRepository) peekNextID() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID + 1
}

func cloneChannel(ch *models.Channel) *models.Channel {
	c := *ch
	if ch.AssignedTenant != nil {
		t := *ch.AssignedTenant
		c.AssignedTenant = &t
	}
	if ch.PhoneNumber != nil {
		p := *ch.PhoneNumber
		c.PhoneNumber = &p
	}
	if ch.LastChecked != nil {
		l := *ch.LastChecked
		c.LastChecked = &l
	}
	return &c
}

func (r *MemoryChannelRepository) sortedLocked(desc bool) []*models.Channel {
	out := make([]*models.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matchesChannel(ch *models.Channel, f models.ChannelFilter) bool {
	if f.ID != nil && ch.ID != *f.ID {
		return false
	}
	if f.UUID != nil && ch.UUID != *f.UUID {
		return false
	}
	if f.Name != nil && ch.Name != *f.Name {
		return false
	}
	if f.PoolOwned != nil && ch.PoolOwned != *f.PoolOwned {
		return false
	}
	if f.AssignedTenant != nil && (ch.AssignedTenant == nil || *ch.AssignedTenant != *f.AssignedTenant) {
		return false
	}
	if f.Assigned != nil && ch.IsAssigned() != *f.Assigned {
		return false
	}
	if f.Status != nil && ch.Status != *f.Status {
		return false
	}
	if f.CreatedAfter != nil && !ch.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !ch.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func (r *MemoryChannelRepository) ByID(ctx context.Context, id uint) (*models.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	if ch, ok := r.channels[id]; ok {
		return cloneChannel(ch), nil
	}
	return nil, nil
}

func (r *MemoryChannelRepository) ByFilter(ctx context.Context, filter models.ChannelFilter, orderBy string, limit, offset int) ([]*models.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	desc := orderBy == "" || strings.HasSuffix(strings.ToUpper(orderBy), "DESC")
	var out []*models.Channel
	for _, ch := range r.sortedLocked(desc) {
		if matchesChannel(ch, filter) {
			out = append(out, cloneChannel(ch))
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryChannelRepository) Save(ctx context.Context, ch *models.Channel) error {
	if r.SaveErr != nil {
		if err := r.SaveErr(ch); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for _, existing := range r.channels {
		if existing.Name == ch.Name {
			return fmt.Errorf("duplicate channel name %s", ch.Name)
		}
	}
	r.nextID++
	ch.ID = r.nextID
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
		ch.UpdatedAt = ch.CreatedAt
	}
	r.channels[ch.ID] = cloneChannel(ch)
	return nil
}

func (r *MemoryChannelRepository) Count(ctx context.Context, filter models.ChannelFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for _, ch := range r.channels {
		if matchesChannel(ch, filter) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryChannelRepository) ByTenant(ctx context.Context, tenantID string) (*models.Channel, error) {
	poolOwned := true
	return r.first(models.ChannelFilter{AssignedTenant: &tenantID, PoolOwned: &poolOwned})
}

func (r *MemoryChannelRepository) first(filter models.ChannelFilter) (*models.Channel, error) {
	rows, err := r.ByFilter(context.Background(), filter, "id ASC", 1, 0)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *MemoryChannelRepository) FirstAvailable(ctx context.Context, exclude []uint) (*models.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	skip := make(map[uint]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	for _, ch := range r.sortedLocked(false) {
		if !ch.PoolOwned || ch.IsAssigned() {
			continue
		}
		if _, ok := skip[ch.ID]; ok {
			continue
		}
		return cloneChannel(ch), nil
	}
	return nil, nil
}

func (r *MemoryChannelRepository) AssignTenant(ctx context.Context, channelID uint, tenantID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}

	ch, ok := r.channels[channelID]
	if !ok || !ch.PoolOwned || ch.IsAssigned() {
		return false, nil
	}
	for _, other := range r.channels {
		if other.PoolOwned && other.AssignedTenant != nil && *other.AssignedTenant == tenantID {
			return false, repository.ErrTenantAlreadyAssigned
		}
	}
	tenant := tenantID
	ch.AssignedTenant = &tenant
	ch.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryChannelRepository) ReleaseTenant(ctx context.Context, tenantID string) (uint, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, false, r.Err
	}

	for _, ch := range r.channels {
		if ch.PoolOwned && ch.AssignedTenant != nil && *ch.AssignedTenant == tenantID {
			ch.AssignedTenant = nil
			ch.Status = models.ChannelStatusDisconnected
			ch.UpdatedAt = time.Now().UTC()
			return ch.ID, true, nil
		}
	}
	return 0, false, nil
}

func (r *MemoryChannelRepository) UpdateStatus(ctx context.Context, channelID uint, status models.ChannelStatus, phoneNumber *string, checkedAt time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid channel status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}

	ch, ok := r.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %d not found", channelID)
	}
	ch.Status = status
	if phoneNumber != nil {
		p := *phoneNumber
		ch.PhoneNumber = &p
	}
	checked := checkedAt
	ch.LastChecked = &checked
	ch.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryChannelRepository) Stats(ctx context.Context) (*models.PoolStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	stats := &models.PoolStats{}
	for _, ch := range r.channels {
		if !ch.PoolOwned {
			continue
		}
		stats.Total++
		if !ch.IsAssigned() {
			stats.Available++
		}
	}
	stats.Assigned = stats.Total - stats.Available
	return stats, nil
}

func (r *MemoryChannelRepository) Delete(ctx context.Context, channelID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	if _, ok := r.channels[channelID]; !ok {
		return 0, nil
	}
	delete(r.channels, channelID)
	return 1, nil
}
