package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tablepilot/crmsync/internal/models"
	"github.com/tablepilot/crmsync/internal/querycache"
)

// ErrNotCached is returned when an edit targets a lead the cache has never
// seen; there is nothing to show speculatively or to roll back to.
var ErrNotCached = errors.New("lead not in cache")

// Writer is the slice of the API client that issues remote writes.
type Writer interface {
	PatchLead(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error)
	LeadAction(ctx context.Context, id int64, action models.Action) (*models.Lead, error)
}

type pendingKey struct {
	leadID int64
	field  models.Field
}

// pendingEdit exists from the moment a speculative value is applied until
// the write settles. previous always holds the last server-confirmed value,
// never a superseded speculative one, so rollback is correct under
// supersession. value is the speculative value itself, kept so it can be
// restored when a concurrent fetch replaces the cached data mid-flight.
type pendingEdit struct {
	mutationID uuid.UUID
	previous   any
	value      any
}

// Coordinator bridges field-edit intents into instant local visibility and
// eventual consistency with the server. It is the only mutator of the
// cache's speculative overlay.
type Coordinator struct {
	cache  *querycache.Cache
	writer Writer
	now    func() time.Time

	mu      sync.Mutex
	pending map[pendingKey]pendingEdit
}

// New creates a coordinator over the given cache and writer.
func New(cache *querycache.Cache, writer Writer) *Coordinator {
	c := &Coordinator{
		cache:   cache,
		writer:  writer,
		now:     time.Now,
		pending: make(map[pendingKey]pendingEdit),
	}
	cache.SetOnCommit(c.reapplyPending)
	return c
}

// reapplyPending restores unsettled speculative values on top of freshly
// committed server data, so a fetch resolving mid-mutation cannot expose
// the pre-edit server value. Runs under the cache lock; it patches the
// committed data directly and never calls back into the cache.
func (c *Coordinator) reapplyPending(data any) {
	container, ok := data.(querycache.EntityContainer)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for pk, p := range c.pending {
		container.PatchEntity(pk.leadID, map[string]any{string(pk.field): p.value})
	}
}

// SetField applies a single-field edit speculatively and issues the remote
// write. By the time it returns, every cached entry holding the lead shows
// the new value. The returned channel yields the write's outcome once: nil
// on confirmation, the rollback-triggering error otherwise.
func (c *Coordinator) SetField(ctx context.Context, leadID int64, edit models.Edit) <-chan error {
	return c.mutate(ctx, leadID, map[models.Field]any{edit.Field: edit.Value},
		func(ctx context.Context) (*models.Lead, error) {
			return c.writer.PatchLead(ctx, leadID, map[string]any{string(edit.Field): edit.Value})
		})
}

// Do runs a whole-record action mutation (mark_contacted, qualify,
// disqualify). All of the action's field changes are applied as one pending
// group; any failure rolls the entire group back.
func (c *Coordinator) Do(ctx context.Context, leadID int64, action models.Action) <-chan error {
	lead, ok := c.cachedLead(leadID)
	if !ok {
		return settled(fmt.Errorf("%w: lead %d", ErrNotCached, leadID))
	}

	fields := action.SpeculativeFields(lead, c.now())
	if fields == nil {
		return settled(fmt.Errorf("unknown lead action: %s", action))
	}

	return c.mutate(ctx, leadID, fields,
		func(ctx context.Context) (*models.Lead, error) {
			return c.writer.LeadAction(ctx, leadID, action)
		})
}

// mutate records the pending group, applies the speculative values, and
// issues the write asynchronously.
func (c *Coordinator) mutate(ctx context.Context, leadID int64, fields map[models.Field]any, write func(context.Context) (*models.Lead, error)) <-chan error {
	lead, ok := c.cachedLead(leadID)
	if !ok {
		return settled(fmt.Errorf("%w: lead %d", ErrNotCached, leadID))
	}

	mutationID := uuid.New()
	overlay := make(map[string]any, len(fields))

	c.mu.Lock()
	for field, value := range fields {
		pk := pendingKey{leadID: leadID, field: field}
		previous, known := c.previousValue(pk, lead, field)
		if !known {
			c.mu.Unlock()
			return settled(fmt.Errorf("%w: lead %d has no field %s", ErrNotCached, leadID, field))
		}
		// A second edit to the same field cancels and supersedes the first;
		// the superseded edit's outcome is ignored when it settles.
		c.pending[pk] = pendingEdit{mutationID: mutationID, previous: previous, value: value}
		overlay[string(field)] = value
	}
	c.mu.Unlock()

	c.cache.ApplyLocalEditAll(leadID, overlay)

	log.Debug().
		Int64("leadID", leadID).
		Str("mutationID", mutationID.String()).
		Int("fields", len(fields)).
		Msg("applied speculative edit")

	done := make(chan error, 1)

	// The write outlives the caller's context: commit and rollback operate
	// on cache state, not UI state.
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		confirmed, err := write(writeCtx)
		done <- c.settle(leadID, mutationID, fields, confirmed, err)
	}()

	return done
}

// settle reconciles a write's outcome against the pending registry. Both the
// confirm and the rollback paths apply only to fields whose active pending
// edit still carries this mutation id; a superseded edit's outcome never
// clobbers the newer edit that overrode it.
func (c *Coordinator) settle(leadID int64, mutationID uuid.UUID, fields map[models.Field]any, confirmed *models.Lead, err error) error {
	c.mu.Lock()
	active := make(map[models.Field]pendingEdit, len(fields))
	for field := range fields {
		pk := pendingKey{leadID: leadID, field: field}
		if p, ok := c.pending[pk]; ok && p.mutationID == mutationID {
			active[field] = p
			delete(c.pending, pk)
		}
	}
	c.mu.Unlock()

	if err != nil {
		if len(active) > 0 {
			rollback := make(map[string]any, len(active))
			for field, p := range active {
				rollback[string(field)] = p.previous
			}
			c.cache.ApplyLocalEditAll(leadID, rollback)
			log.Warn().
				Err(err).
				Int64("leadID", leadID).
				Str("mutationID", mutationID.String()).
				Msg("write failed, rolled back speculative edit")
		} else {
			log.Debug().
				Err(err).
				Int64("leadID", leadID).
				Str("mutationID", mutationID.String()).
				Msg("superseded write failed, rollback skipped")
		}
		return err
	}

	if len(active) > 0 {
		reconcile := make(map[string]any, len(active))
		for field := range active {
			if v, ok := confirmed.FieldValue(field); ok {
				reconcile[string(field)] = v
			}
		}
		c.cache.ApplyLocalEditAll(leadID, reconcile)

		// Status-count widgets re-fetch on their next read.
		c.cache.Invalidate(querycache.ByResource(models.ResourceLeadStats))
	}

	log.Debug().
		Int64("leadID", leadID).
		Str("mutationID", mutationID.String()).
		Msg("write confirmed")

	return nil
}

// previousValue resolves the server-confirmed value for a field: the one
// recorded by an existing pending edit if there is one, the cached value
// otherwise. Assumes c.mu is held.
func (c *Coordinator) previousValue(pk pendingKey, lead *models.Lead, field models.Field) (any, bool) {
	if existing, ok := c.pending[pk]; ok {
		return existing.previous, true
	}
	return lead.FieldValue(field)
}

// PendingCount returns the number of unsettled field edits, for tests and
// debugging.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) cachedLead(leadID int64) (*models.Lead, bool) {
	v, ok := c.cache.Find(leadID)
	if !ok {
		return nil, false
	}
	lead, ok := v.(*models.Lead)
	return lead, ok
}

func settled(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	return done
}
