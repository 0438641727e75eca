package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tablepilot/crmsync/internal/models"
)

// ListLeads fetches one page of the lead listing.
func (c *Client) ListLeads(ctx context.Context, filter models.LeadFilter) (*models.LeadPage, error) {
	var page models.LeadPage
	if err := c.get(ctx, "/api/sales/leads/", filter.Query(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetLead fetches a single lead.
func (c *Client) GetLead(ctx context.Context, id int64) (*models.Lead, error) {
	var lead models.Lead
	if err := c.get(ctx, fmt.Sprintf("/api/sales/leads/%d/", id), nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// PatchLead issues a partial update and returns the server-confirmed lead.
// Mutations are never retried automatically, to avoid duplicate writes.
func (c *Client) PatchLead(ctx context.Context, id int64, fields map[string]any) (*models.Lead, error) {
	var lead models.Lead
	path := fmt.Sprintf("/api/sales/leads/%d/", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, fields, &lead, true); err != nil {
		return nil, err
	}
	return &lead, nil
}

// LeadAction invokes a server-side transition (mark_contacted, qualify,
// disqualify) and returns the server-confirmed lead.
func (c *Client) LeadAction(ctx context.Context, id int64, action models.Action) (*models.Lead, error) {
	var lead models.Lead
	path := fmt.Sprintf("/api/sales/leads/%d/%s/", id, action)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, &lead, true); err != nil {
		return nil, err
	}
	return &lead, nil
}

// LeadStats fetches aggregate lead statistics.
func (c *Client) LeadStats(ctx context.Context) (*models.LeadStats, error) {
	var stats models.LeadStats
	if err := c.get(ctx, "/api/sales/leads/stats/", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
