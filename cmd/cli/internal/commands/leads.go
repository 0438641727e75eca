package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tablepilot/crmsync/internal/models"
	"github.com/tablepilot/crmsync/internal/querycache"
)

type LeadsCmd struct {
	List       LeadsListCmd       `cmd:"" help:"List leads"`
	Get        LeadsGetCmd        `cmd:"" help:"Show one lead"`
	Set        LeadsSetCmd        `cmd:"" help:"Edit fields on a lead"`
	Contacted  LeadsContactedCmd  `cmd:"" help:"Mark a lead as contacted"`
	Qualify    LeadsQualifyCmd    `cmd:"" help:"Mark a lead as qualified"`
	Disqualify LeadsDisqualifyCmd `cmd:"" help:"Mark a lead as disqualified"`
}

type LeadsListCmd struct {
	Server     string `help:"Server URL"`
	Status     string `help:"Filter by status (new, contacted, qualified, disqualified, converted)"`
	Source     string `help:"Filter by source"`
	AssignedTo *int64 `help:"Filter by assigned user id"`
	Search     string `help:"Search restaurant, contact, phone or email"`
	Page       int    `help:"Page number" default:"1"`
	Mine       bool   `help:"Only leads assigned to me"`
	Watch      bool   `help:"Watch for changes (refresh every 5 seconds)"`
}

func (l *LeadsListCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals, l.Server)
	if err != nil {
		return err
	}

	principal, err := app.requireSession(ctx)
	if err != nil {
		return err
	}

	filter := models.LeadFilter{
		Status: models.Status(l.Status),
		Source: models.Source(l.Source),
		Search: l.Search,
		Page:   l.Page,
	}
	if l.AssignedTo != nil {
		filter.AssignedTo = l.AssignedTo
	}
	if l.Mine {
		filter.AssignedTo = &principal.ID
	}

	if l.Watch {
		return l.watchLeads(ctx, app, filter)
	}

	page, err := l.listLeads(ctx, app, filter)
	if err != nil {
		return err
	}
	printLeads(page, filter.Page)
	return nil
}

func (l *LeadsListCmd) listLeads(ctx context.Context, app *app, filter models.LeadFilter) (*models.LeadPage, error) {
	key := listKey(filter)
	release := app.cache.Observe(key)
	defer release()

	v, err := app.cache.Fetch(ctx, key, querycache.StaleTimeLeads, func(ctx context.Context) (any, error) {
		return app.client.ListLeads(ctx, filter)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.LeadPage), nil
}

func (l *LeadsListCmd) watchLeads(ctx context.Context, app *app, filter models.LeadFilter) error {
	fmt.Println("Watching leads (press Ctrl+C to stop)...")
	fmt.Println()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	page, err := l.listLeads(ctx, app, filter)
	if err != nil {
		return err
	}
	printLeads(page, filter.Page)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Force the next fetch through to the server.
			app.cache.Invalidate(querycache.ByResource(models.ResourceLeads))

			fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top
			fmt.Printf("Leads (updated at %s)\n", time.Now().Format("15:04:05"))
			fmt.Println()

			page, err := l.listLeads(ctx, app, filter)
			if err != nil {
				fmt.Printf("Error updating lead list: %v\n", err)
				continue
			}
			printLeads(page, filter.Page)
		}
	}
}

type LeadsGetCmd struct {
	Server string `help:"Server URL"`
	ID     int64  `arg:"" help:"Lead id"`
}

func (g *LeadsGetCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals, g.Server)
	if err != nil {
		return err
	}
	if _, err := app.requireSession(ctx); err != nil {
		return err
	}

	lead, err := app.fetchLead(ctx, g.ID)
	if err != nil {
		return err
	}
	printLead(lead)
	return nil
}

type LeadsSetCmd struct {
	Server   string  `help:"Server URL"`
	ID       int64   `arg:"" help:"Lead id"`
	Status   string  `help:"New status"`
	Score    *int    `help:"New score"`
	Notes    *string `help:"Replace notes"`
	Assign   *int64  `help:"Assign to user id"`
	Unassign bool    `help:"Clear the assignment"`
	Phone    *string `help:"New phone number"`
	Email    *string `help:"New email address"`
	Contact  *string `help:"New contact name"`
	Location *string `help:"New location"`
}

func (s *LeadsSetCmd) edits() []models.Edit {
	var edits []models.Edit
	if s.Status != "" {
		edits = append(edits, models.SetStatus(models.Status(s.Status)))
	}
	if s.Score != nil {
		edits = append(edits, models.SetScore(*s.Score))
	}
	if s.Notes != nil {
		edits = append(edits, models.SetNotes(*s.Notes))
	}
	if s.Unassign {
		edits = append(edits, models.SetAssignedTo(nil))
	} else if s.Assign != nil {
		edits = append(edits, models.SetAssignedTo(s.Assign))
	}
	if s.Phone != nil {
		edits = append(edits, models.SetPhone(*s.Phone))
	}
	if s.Email != nil {
		edits = append(edits, models.SetEmail(*s.Email))
	}
	if s.Contact != nil {
		edits = append(edits, models.SetContactName(*s.Contact))
	}
	if s.Location != nil {
		edits = append(edits, models.SetLocation(*s.Location))
	}
	return edits
}

func (s *LeadsSetCmd) Run(ctx context.Context, globals *Globals) error {
	edits := s.edits()
	if len(edits) == 0 {
		return fmt.Errorf("nothing to change, pass at least one field flag")
	}

	app, err := newApp(globals, s.Server)
	if err != nil {
		return err
	}
	if _, err := app.requireSession(ctx); err != nil {
		return err
	}

	// Populate the cache so the edits have an entry to patch and roll back
	// against.
	if _, err := app.fetchLead(ctx, s.ID); err != nil {
		return err
	}

	for _, edit := range edits {
		if err := <-app.edits.SetField(ctx, s.ID, edit); err != nil {
			return fmt.Errorf("failed to set %s: %w", edit.Field, err)
		}
	}

	lead, err := app.fetchLead(ctx, s.ID)
	if err != nil {
		return err
	}
	printLead(lead)
	return nil
}

type LeadsContactedCmd struct {
	Server string `help:"Server URL"`
	ID     int64  `arg:"" help:"Lead id"`
}

func (c *LeadsContactedCmd) Run(ctx context.Context, globals *Globals) error {
	return runLeadAction(ctx, globals, c.Server, c.ID, models.ActionMarkContacted)
}

type LeadsQualifyCmd struct {
	Server string `help:"Server URL"`
	ID     int64  `arg:"" help:"Lead id"`
}

func (c *LeadsQualifyCmd) Run(ctx context.Context, globals *Globals) error {
	return runLeadAction(ctx, globals, c.Server, c.ID, models.ActionQualify)
}

type LeadsDisqualifyCmd struct {
	Server string `help:"Server URL"`
	ID     int64  `arg:"" help:"Lead id"`
}

func (c *LeadsDisqualifyCmd) Run(ctx context.Context, globals *Globals) error {
	return runLeadAction(ctx, globals, c.Server, c.ID, models.ActionDisqualify)
}

func runLeadAction(ctx context.Context, globals *Globals, server string, id int64, action models.Action) error {
	app, err := newApp(globals, server)
	if err != nil {
		return err
	}
	if _, err := app.requireSession(ctx); err != nil {
		return err
	}

	if _, err := app.fetchLead(ctx, id); err != nil {
		return err
	}

	if err := <-app.edits.Do(ctx, id, action); err != nil {
		return fmt.Errorf("%s failed: %w", action, err)
	}

	lead, err := app.fetchLead(ctx, id)
	if err != nil {
		return err
	}
	printLead(lead)
	return nil
}

func printLeads(page *models.LeadPage, pageNum int) {
	if pageNum < 1 {
		pageNum = 1
	}
	fmt.Printf("Leads (%d total, page %d):\n", page.Count, pageNum)

	if len(page.Results) == 0 {
		fmt.Println("No leads found.")
		return
	}

	fmt.Printf("%-6s %-28s %-20s %-13s %-6s %-20s %-12s\n",
		"ID", "Restaurant", "Contact", "Status", "Score", "Assigned", "Created")
	fmt.Println(strings.Repeat("─", 110))

	for _, lead := range page.Results {
		assigned := "-"
		if lead.AssignedToDetail != nil {
			assigned = lead.AssignedToDetail.DisplayName()
		} else if lead.AssignedTo != nil {
			assigned = fmt.Sprintf("user %d", *lead.AssignedTo)
		}

		restaurant := lead.RestaurantName
		if len(restaurant) > 28 {
			restaurant = restaurant[:25] + "..."
		}
		contact := lead.ContactName
		if len(contact) > 20 {
			contact = contact[:17] + "..."
		}

		fmt.Printf("%-6d %-28s %-20s %-13s %-6d %-20s %-12s\n",
			lead.ID,
			restaurant,
			contact,
			lead.Status,
			lead.Score,
			assigned,
			lead.CreatedAt.Format("2006-01-02"))
	}

	if page.Next != nil {
		fmt.Printf("\nUse --page=%d to see the next page\n", pageNum+1)
	}
}

func printLead(lead *models.Lead) {
	fmt.Printf("%-16s %d\n", "ID:", lead.ID)
	fmt.Printf("%-16s %s\n", "Restaurant:", lead.RestaurantName)
	fmt.Printf("%-16s %s\n", "Contact:", lead.ContactName)
	fmt.Printf("%-16s %s\n", "Phone:", lead.Phone)
	fmt.Printf("%-16s %s\n", "Email:", lead.Email)
	fmt.Printf("%-16s %s\n", "Location:", lead.Location)
	fmt.Printf("%-16s %s\n", "Status:", lead.Status)
	fmt.Printf("%-16s %s\n", "Source:", lead.Source)
	fmt.Printf("%-16s %d\n", "Score:", lead.Score)
	if lead.AssignedToDetail != nil {
		fmt.Printf("%-16s %s\n", "Assigned to:", lead.AssignedToDetail.DisplayName())
	}
	if lead.FirstContactedAt != nil {
		fmt.Printf("%-16s %s\n", "First contact:", lead.FirstContactedAt.Local().Format("2006-01-02 15:04"))
	}
	if lead.Notes != "" {
		fmt.Printf("%-16s %s\n", "Notes:", lead.Notes)
	}
	fmt.Printf("%-16s %s\n", "Created:", lead.CreatedAt.Local().Format("2006-01-02 15:04"))
}
