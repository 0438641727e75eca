package models

import (
	"net/url"
	"strconv"
	"time"
)

// Cache resource names for lead queries.
const (
	ResourceLeads     = "leads"
	ResourceLeadStats = "lead-stats"
)

// Status is a lead's lifecycle state.
type Status string

const (
	StatusNew          Status = "new"
	StatusContacted    Status = "contacted"
	StatusQualified    Status = "qualified"
	StatusDisqualified Status = "disqualified"
	StatusConverted    Status = "converted"
)

// Source identifies where a lead came from.
type Source string

const (
	SourceWebsite      Source = "website"
	SourceFacebook     Source = "facebook"
	SourceInstagram    Source = "instagram"
	SourceGoogle       Source = "google"
	SourceReferral     Source = "referral"
	SourceSalesSourced Source = "sales_sourced"
	SourceChat         Source = "chat"
	SourceOther        Source = "other"
)

// Lead is a potential restaurant customer record owned by the server.
type Lead struct {
	ID               int64      `json:"id"`
	RestaurantName   string     `json:"restaurant_name"`
	ContactName      string     `json:"contact_name"`
	Phone            string     `json:"phone"`
	Email            string     `json:"email"`
	Location         string     `json:"location"`
	Instagram        string     `json:"instagram"`
	Status           Status     `json:"status"`
	Source           Source     `json:"source"`
	CampaignID       string     `json:"campaign_id"`
	Score            int        `json:"score"`
	AssignedTo       *int64     `json:"assigned_to"`
	AssignedToDetail *Principal `json:"assigned_to_detail,omitempty"`
	FirstContactDue  *time.Time `json:"first_contact_due"`
	FirstContactedAt *time.Time `json:"first_contacted_at"`
	Notes            string     `json:"notes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// LeadPage is one page of the server's paginated lead listing.
type LeadPage struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Lead  `json:"results"`
}

// SourceCount is one row of the by-source stats breakdown.
type SourceCount struct {
	Source Source `json:"source"`
	Count  int    `json:"count"`
}

// LeadStats is the aggregate statistics payload for status-count widgets.
type LeadStats struct {
	Total        int           `json:"total"`
	New          int           `json:"new"`
	Contacted    int           `json:"contacted"`
	Qualified    int           `json:"qualified"`
	Disqualified int           `json:"disqualified"`
	Converted    int           `json:"converted"`
	BySource     []SourceCount `json:"by_source"`
}

// LeadFilter selects a slice of the lead listing. The zero value selects
// everything the caller is allowed to see.
type LeadFilter struct {
	Status     Status
	Source     Source
	AssignedTo *int64
	Search     string
	Page       int
}

// Params returns the filter as string pairs, used both for the request query
// and as the structural cache key parameters.
func (f LeadFilter) Params() map[string]string {
	params := map[string]string{}
	if f.Status != "" {
		params["status"] = string(f.Status)
	}
	if f.Source != "" {
		params["source"] = string(f.Source)
	}
	if f.AssignedTo != nil {
		params["assigned_to"] = strconv.FormatInt(*f.AssignedTo, 10)
	}
	if f.Search != "" {
		params["search"] = f.Search
	}
	if f.Page > 1 {
		params["page"] = strconv.Itoa(f.Page)
	}
	return params
}

// Query returns the filter as URL query values.
func (f LeadFilter) Query() url.Values {
	values := url.Values{}
	for k, v := range f.Params() {
		values.Set(k, v)
	}
	return values
}
