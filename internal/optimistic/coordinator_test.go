package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablepilot/crmsync/internal/models"
	"github.com/tablepilot/crmsync/internal/querycache"
)

type fakeWriter struct {
	patchFn  func(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error)
	actionFn func(ctx context.Context, id int64, action models.Action) (*models.Lead, error)
}

func (w *fakeWriter) PatchLead(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
	return w.patchFn(ctx, id, fields)
}

func (w *fakeWriter) LeadAction(ctx context.Context, id int64, action models.Action) (*models.Lead, error) {
	return w.actionFn(ctx, id, action)
}

func seed(t *testing.T, cache *querycache.Cache, key querycache.Key, data any) {
	t.Helper()
	_, err := cache.Fetch(context.Background(), key, time.Hour, func(ctx context.Context) (any, error) {
		return data, nil
	})
	require.NoError(t, err)
}

func cachedLead(t *testing.T, cache *querycache.Cache, id int64) *models.Lead {
	t.Helper()
	v, ok := cache.Find(id)
	require.True(t, ok)
	return v.(*models.Lead)
}

func TestCoordinator_SetField(t *testing.T) {
	leadKey := querycache.NewKey(models.ResourceLeads, map[string]string{"id": "1"})
	pageKey := querycache.NewKey(models.ResourceLeads, map[string]string{"page": "1"})

	t.Run("edit is visible before the write settles", func(t *testing.T) {
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew, Score: 10})
		seed(t, cache, pageKey, &models.LeadPage{Results: []models.Lead{{ID: 1, Status: models.StatusNew, Score: 10}}})

		gate := make(chan struct{})
		writer := &fakeWriter{
			patchFn: func(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
				<-gate
				return &models.Lead{ID: 1, Status: models.StatusNew, Score: 40}, nil
			},
		}
		coord := New(cache, writer)

		done := coord.SetField(context.Background(), 1, models.SetScore(42))

		// Still in flight, but every cached copy already shows 42.
		assert.Equal(t, 42, cachedLead(t, cache, 1).Score)
		page, ok := cache.Get(pageKey)
		require.True(t, ok)
		assert.Equal(t, 42, page.Data.(*models.LeadPage).Results[0].Score)
		assert.Equal(t, 1, coord.PendingCount())

		close(gate)
		require.NoError(t, <-done)

		// Reconciled to the value the server confirmed, not the speculative one.
		assert.Equal(t, 40, cachedLead(t, cache, 1).Score)
		assert.Equal(t, 40, page.Data.(*models.LeadPage).Results[0].Score)
		assert.Equal(t, 0, coord.PendingCount())
	})

	t.Run("edit survives a refetch that resolves mid-flight", func(t *testing.T) {
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew, Score: 10})

		gate := make(chan struct{})
		writer := &fakeWriter{
			patchFn: func(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
				<-gate
				return &models.Lead{ID: 1, Status: models.StatusNew, Score: 42}, nil
			},
		}
		coord := New(cache, writer)

		done := coord.SetField(context.Background(), 1, models.SetScore(42))
		assert.Equal(t, 42, cachedLead(t, cache, 1).Score)

		before, ok := cache.Get(leadKey)
		require.True(t, ok)

		// A revalidation resolves while the write is still in flight; the
		// server copy it brings back predates the edit.
		cache.Invalidate(querycache.ByResource(models.ResourceLeads))
		_, err := cache.Fetch(context.Background(), leadKey, time.Hour, func(ctx context.Context) (any, error) {
			return &models.Lead{ID: 1, Status: models.StatusNew, Score: 10}, nil
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			entry, ok := cache.Get(leadKey)
			return ok && entry.FetchedAt.After(before.FetchedAt)
		}, time.Second, 5*time.Millisecond)

		// The speculative value is restored on top of the fresh server copy.
		assert.Equal(t, 42, cachedLead(t, cache, 1).Score)
		assert.Equal(t, 1, coord.PendingCount())

		close(gate)
		require.NoError(t, <-done)
		assert.Equal(t, 42, cachedLead(t, cache, 1).Score)
		assert.Equal(t, 0, coord.PendingCount())
	})

	t.Run("failed write rolls back to the confirmed value", func(t *testing.T) {
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew, Score: 10})

		writeErr := errors.New("server unavailable")
		writer := &fakeWriter{
			patchFn: func(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
				return nil, writeErr
			},
		}
		coord := New(cache, writer)

		done := coord.SetField(context.Background(), 1, models.SetScore(42))
		assert.Equal(t, 42, cachedLead(t, cache, 1).Score)

		assert.ErrorIs(t, <-done, writeErr)
		assert.Equal(t, 10, cachedLead(t, cache, 1).Score)
		assert.Equal(t, 0, coord.PendingCount())
	})

	t.Run("success invalidates cached statistics", func(t *testing.T) {
		cache := querycache.New()
		statsKey := querycache.NewKey(models.ResourceLeadStats, nil)
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew})
		seed(t, cache, statsKey, map[string]int{"new": 5})

		before, ok := cache.Get(statsKey)
		require.True(t, ok)

		writer := &fakeWriter{
			patchFn: func(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
				return &models.Lead{ID: 1, Status: models.StatusQualified}, nil
			},
		}
		coord := New(cache, writer)

		require.NoError(t, <-coord.SetField(context.Background(), 1, models.SetStatus(models.StatusQualified)))

		after, ok := cache.Get(statsKey)
		require.True(t, ok)
		assert.True(t, after.StaleAfter.Before(before.StaleAfter))
	})

	t.Run("uncached lead is rejected", func(t *testing.T) {
		coord := New(querycache.New(), &fakeWriter{})
		assert.ErrorIs(t, <-coord.SetField(context.Background(), 99, models.SetScore(1)), ErrNotCached)
	})
}

func TestCoordinator_Supersession(t *testing.T) {
	leadKey := querycache.NewKey(models.ResourceLeads, map[string]string{"id": "1"})

	newCoordinator := func(t *testing.T, firstGate, secondGate chan struct{}, firstErr, secondErr error) (*querycache.Cache, *Coordinator) {
		t.Helper()
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew})

		writer := &fakeWriter{
			patchFn: func(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
				switch fields["status"] {
				case models.StatusContacted:
					<-firstGate
					if firstErr != nil {
						return nil, firstErr
					}
					return &models.Lead{ID: 1, Status: models.StatusContacted}, nil
				default:
					<-secondGate
					if secondErr != nil {
						return nil, secondErr
					}
					return &models.Lead{ID: 1, Status: models.StatusQualified}, nil
				}
			},
		}
		return cache, New(cache, writer)
	}

	t.Run("superseded failure does not clobber the newer edit", func(t *testing.T) {
		firstGate := make(chan struct{})
		secondGate := make(chan struct{})
		firstErr := errors.New("first write failed")
		secondErr := errors.New("second write failed")
		cache, coord := newCoordinator(t, firstGate, secondGate, firstErr, secondErr)

		first := coord.SetField(context.Background(), 1, models.SetStatus(models.StatusContacted))
		second := coord.SetField(context.Background(), 1, models.SetStatus(models.StatusQualified))
		assert.Equal(t, models.StatusQualified, cachedLead(t, cache, 1).Status)

		// The first edit fails after being superseded: no rollback.
		close(firstGate)
		assert.ErrorIs(t, <-first, firstErr)
		assert.Equal(t, models.StatusQualified, cachedLead(t, cache, 1).Status)

		// The second edit fails while active: rollback, and to the original
		// server-confirmed value rather than the first speculative one.
		close(secondGate)
		assert.ErrorIs(t, <-second, secondErr)
		assert.Equal(t, models.StatusNew, cachedLead(t, cache, 1).Status)
		assert.Equal(t, 0, coord.PendingCount())
	})

	t.Run("superseded success is ignored", func(t *testing.T) {
		firstGate := make(chan struct{})
		secondGate := make(chan struct{})
		cache, coord := newCoordinator(t, firstGate, secondGate, nil, nil)

		first := coord.SetField(context.Background(), 1, models.SetStatus(models.StatusContacted))
		second := coord.SetField(context.Background(), 1, models.SetStatus(models.StatusQualified))

		close(firstGate)
		require.NoError(t, <-first)
		assert.Equal(t, models.StatusQualified, cachedLead(t, cache, 1).Status)

		close(secondGate)
		require.NoError(t, <-second)
		assert.Equal(t, models.StatusQualified, cachedLead(t, cache, 1).Status)
	})
}

func TestCoordinator_Do(t *testing.T) {
	leadKey := querycache.NewKey(models.ResourceLeads, map[string]string{"id": "1"})

	t.Run("mark_contacted applies its whole field group speculatively", func(t *testing.T) {
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew})

		gate := make(chan struct{})
		stamped := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		writer := &fakeWriter{
			actionFn: func(ctx context.Context, id int64, action models.Action) (*models.Lead, error) {
				<-gate
				assert.Equal(t, models.ActionMarkContacted, action)
				return &models.Lead{ID: 1, Status: models.StatusContacted, FirstContactedAt: &stamped}, nil
			},
		}
		coord := New(cache, writer)

		done := coord.Do(context.Background(), 1, models.ActionMarkContacted)

		lead := cachedLead(t, cache, 1)
		assert.Equal(t, models.StatusContacted, lead.Status)
		require.NotNil(t, lead.FirstContactedAt)
		assert.Equal(t, 2, coord.PendingCount())

		close(gate)
		require.NoError(t, <-done)

		lead = cachedLead(t, cache, 1)
		assert.Equal(t, models.StatusContacted, lead.Status)
		require.NotNil(t, lead.FirstContactedAt)
		assert.Equal(t, stamped, *lead.FirstContactedAt)
	})

	t.Run("failed action rolls back every field in the group", func(t *testing.T) {
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew})

		writeErr := errors.New("server unavailable")
		writer := &fakeWriter{
			actionFn: func(ctx context.Context, id int64, action models.Action) (*models.Lead, error) {
				return nil, writeErr
			},
		}
		coord := New(cache, writer)

		assert.ErrorIs(t, <-coord.Do(context.Background(), 1, models.ActionMarkContacted), writeErr)

		lead := cachedLead(t, cache, 1)
		assert.Equal(t, models.StatusNew, lead.Status)
		assert.Nil(t, lead.FirstContactedAt)
		assert.Equal(t, 0, coord.PendingCount())
	})

	t.Run("mark_contacted keeps an existing first contact time", func(t *testing.T) {
		cache := querycache.New()
		earlier := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusContacted, FirstContactedAt: &earlier})

		writer := &fakeWriter{
			actionFn: func(ctx context.Context, id int64, action models.Action) (*models.Lead, error) {
				return &models.Lead{ID: 1, Status: models.StatusContacted, FirstContactedAt: &earlier}, nil
			},
		}
		coord := New(cache, writer)

		done := coord.Do(context.Background(), 1, models.ActionMarkContacted)
		require.NoError(t, <-done)

		lead := cachedLead(t, cache, 1)
		require.NotNil(t, lead.FirstContactedAt)
		assert.Equal(t, earlier, *lead.FirstContactedAt)
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		cache := querycache.New()
		seed(t, cache, leadKey, &models.Lead{ID: 1, Status: models.StatusNew})
		coord := New(cache, &fakeWriter{})

		err := <-coord.Do(context.Background(), 1, models.Action("archive"))
		assert.ErrorContains(t, err, "unknown lead action")
	})

	t.Run("uncached lead is rejected", func(t *testing.T) {
		coord := New(querycache.New(), &fakeWriter{})
		assert.ErrorIs(t, <-coord.Do(context.Background(), 99, models.ActionQualify), ErrNotCached)
	})
}
