package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tablepilot/crmsync/internal/session"
	"github.com/tablepilot/crmsync/internal/tokenstore"
)

type LoginCmd struct {
	Server   string `help:"Server URL"`
	Username string `help:"Username" required:""`
	Password string `help:"Password (prompted when omitted)"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals, l.Server)
	if err != nil {
		return err
	}

	password := l.Password
	if password == "" {
		fmt.Print("Password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	principal, err := app.session.Login(ctx, l.Username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Logged in as %s (%s, %s)\n", principal.DisplayName(), principal.Department, principal.Role)
	return nil
}

type LogoutCmd struct {
	Server string `help:"Server URL"`
}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals, l.Server)
	if err != nil {
		return err
	}

	if err := app.session.Logout(ctx); err != nil {
		return err
	}

	fmt.Println("Logged out.")
	return nil
}

type WhoamiCmd struct {
	Server string `help:"Server URL"`
}

func (w *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals, w.Server)
	if err != nil {
		return err
	}

	_ = app.session.Bootstrap(ctx)

	state := app.session.State()
	if state.Status != session.Authenticated {
		fmt.Println("Not logged in.")
		return nil
	}

	p := state.Principal
	fmt.Printf("%-12s %s\n", "User:", p.DisplayName())
	fmt.Printf("%-12s %s\n", "Username:", p.Username)
	fmt.Printf("%-12s %s\n", "Email:", p.Email)
	fmt.Printf("%-12s %s\n", "Department:", p.Department)
	fmt.Printf("%-12s %s\n", "Role:", p.Role)

	if pair, err := app.tokens.Read(); err == nil {
		fmt.Printf("%-12s %s\n", "Token:", tokenstore.Fingerprint(pair.Access))
		fmt.Printf("%-12s %s\n", "Keep until:", pair.ExpiresAt.Local().Format("2006-01-02 15:04"))

		// Display only; the token is opaque to the client and only the
		// server can validate it.
		if token, _, err := jwt.NewParser().ParseUnverified(pair.Access, jwt.MapClaims{}); err == nil {
			if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
				fmt.Printf("%-12s %s\n", "Expires:", exp.Local().Format("2006-01-02 15:04"))
			}
		}
	}

	return nil
}
