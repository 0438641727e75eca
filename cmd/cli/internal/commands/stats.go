package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablepilot/crmsync/internal/models"
	"github.com/tablepilot/crmsync/internal/querycache"
)

type StatsCmd struct {
	Server string `help:"Server URL"`
}

func (s *StatsCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals, s.Server)
	if err != nil {
		return err
	}
	if _, err := app.requireSession(ctx); err != nil {
		return err
	}

	key := querycache.NewKey(models.ResourceLeadStats, nil)
	release := app.cache.Observe(key)
	defer release()

	v, err := app.cache.Fetch(ctx, key, querycache.StaleTimeStats, func(ctx context.Context) (any, error) {
		return app.client.LeadStats(ctx)
	})
	if err != nil {
		return err
	}
	stats := v.(*models.LeadStats)

	fmt.Println("Lead statistics:")
	fmt.Printf("%-14s %d\n", "Total:", stats.Total)
	fmt.Printf("%-14s %d\n", "New:", stats.New)
	fmt.Printf("%-14s %d\n", "Contacted:", stats.Contacted)
	fmt.Printf("%-14s %d\n", "Qualified:", stats.Qualified)
	fmt.Printf("%-14s %d\n", "Disqualified:", stats.Disqualified)
	fmt.Printf("%-14s %d\n", "Converted:", stats.Converted)

	if len(stats.BySource) > 0 {
		fmt.Println()
		fmt.Printf("%-16s %s\n", "Source", "Count")
		fmt.Println(strings.Repeat("─", 24))
		for _, row := range stats.BySource {
			fmt.Printf("%-16s %d\n", row.Source, row.Count)
		}
	}

	return nil
}
