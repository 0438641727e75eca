package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/tablepilot/crmsync/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Login   commands.LoginCmd  `cmd:"" help:"Log in to the CRM"`
		Logout  commands.LogoutCmd `cmd:"" help:"Log out and end the session"`
		Whoami  commands.WhoamiCmd `cmd:"" help:"Show the current session"`
		Leads   commands.LeadsCmd  `cmd:"" help:"Work with leads"`
		Stats   commands.StatsCmd  `cmd:"" help:"Show lead statistics"`
		Debug   bool               `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
