package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLead(id int64) Lead {
	return Lead{
		ID:             id,
		RestaurantName: "Trattoria Roma",
		ContactName:    "Maria Rossi",
		Phone:          "555-0101",
		Status:         StatusNew,
		Source:         SourceWebsite,
		Score:          40,
	}
}

func TestLead_PatchEntity(t *testing.T) {
	t.Run("applies matching fields", func(t *testing.T) {
		lead := testLead(1)

		ok := lead.PatchEntity(1, map[string]any{
			"status": StatusQualified,
			"score":  80,
			"notes":  "ready for demo",
		})

		require.True(t, ok)
		assert.Equal(t, StatusQualified, lead.Status)
		assert.Equal(t, 80, lead.Score)
		assert.Equal(t, "ready for demo", lead.Notes)
	})

	t.Run("accepts JSON-decoded value types", func(t *testing.T) {
		lead := testLead(1)

		ok := lead.PatchEntity(1, map[string]any{
			"status": "contacted",
			"score":  float64(55),
		})

		require.True(t, ok)
		assert.Equal(t, StatusContacted, lead.Status)
		assert.Equal(t, 55, lead.Score)
	})

	t.Run("ignores a different id", func(t *testing.T) {
		lead := testLead(1)
		assert.False(t, lead.PatchEntity(2, map[string]any{"score": 99}))
		assert.Equal(t, 40, lead.Score)
	})

	t.Run("clears assignment with nil", func(t *testing.T) {
		userID := int64(7)
		lead := testLead(1)
		lead.AssignedTo = &userID

		require.True(t, lead.PatchEntity(1, map[string]any{"assigned_to": nil}))
		assert.Nil(t, lead.AssignedTo)
	})
}

func TestLeadPage_PatchEntity(t *testing.T) {
	page := &LeadPage{
		Count:   2,
		Results: []Lead{testLead(1), testLead(2)},
	}

	require.True(t, page.PatchEntity(2, map[string]any{"status": StatusQualified}))
	assert.Equal(t, StatusNew, page.Results[0].Status)
	assert.Equal(t, StatusQualified, page.Results[1].Status)

	assert.False(t, page.PatchEntity(42, map[string]any{"status": StatusQualified}))
}

func TestLeadPage_FindEntity(t *testing.T) {
	page := &LeadPage{Results: []Lead{testLead(1), testLead(2)}}

	v, ok := page.FindEntity(2)
	require.True(t, ok)
	lead := v.(*Lead)
	assert.Equal(t, int64(2), lead.ID)

	// The returned pointer aliases the page so edits are visible in place.
	lead.Score = 99
	assert.Equal(t, 99, page.Results[1].Score)

	_, ok = page.FindEntity(42)
	assert.False(t, ok)
}

func TestLead_FieldValue(t *testing.T) {
	lead := testLead(1)

	v, ok := lead.FieldValue(FieldStatus)
	require.True(t, ok)
	assert.Equal(t, StatusNew, v)

	v, ok = lead.FieldValue(FieldScore)
	require.True(t, ok)
	assert.Equal(t, 40, v)

	_, ok = lead.FieldValue(Field("bogus"))
	assert.False(t, ok)
}

func TestAction_SpeculativeFields(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	t.Run("qualify changes only status", func(t *testing.T) {
		lead := testLead(1)
		fields := ActionQualify.SpeculativeFields(&lead, now)
		assert.Equal(t, map[Field]any{FieldStatus: StatusQualified}, fields)
	})

	t.Run("disqualify changes only status", func(t *testing.T) {
		lead := testLead(1)
		fields := ActionDisqualify.SpeculativeFields(&lead, now)
		assert.Equal(t, map[Field]any{FieldStatus: StatusDisqualified}, fields)
	})

	t.Run("mark_contacted stamps the first contact once", func(t *testing.T) {
		lead := testLead(1)
		fields := ActionMarkContacted.SpeculativeFields(&lead, now)
		assert.Equal(t, StatusContacted, fields[FieldStatus])
		assert.Equal(t, now, fields[fieldFirstContactedAt])

		already := now.Add(-time.Hour)
		lead.FirstContactedAt = &already
		fields = ActionMarkContacted.SpeculativeFields(&lead, now)
		assert.Equal(t, map[Field]any{FieldStatus: StatusContacted}, fields)
	})

	t.Run("unknown action yields nothing", func(t *testing.T) {
		lead := testLead(1)
		assert.Nil(t, Action("archive").SpeculativeFields(&lead, now))
	})
}

func TestLeadFilter_Params(t *testing.T) {
	userID := int64(7)
	filter := LeadFilter{
		Status:     StatusNew,
		AssignedTo: &userID,
		Search:     "roma",
		Page:       3,
	}

	params := filter.Params()
	assert.Equal(t, map[string]string{
		"status":      "new",
		"assigned_to": "7",
		"search":      "roma",
		"page":        "3",
	}, params)

	assert.Empty(t, LeadFilter{}.Params())
	assert.Empty(t, LeadFilter{Page: 1}.Params())
}
