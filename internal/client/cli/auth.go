package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taxdesk/internal/common"
	"github.com/dmitrijs2005/taxdesk/internal/filing"
)

// operatorRole is the token role allowed to assign requests.
const operatorRole = string(filing.RoleOperator)

// getSecret is swapped in tests.
var getSecret = GetSecret

// signIn uses the configured token, or a development token for DevUser,
// or asks for a token.
func (a *App) signIn(ctx context.Context) error {
	switch {
	case a.config.AccessToken != "":
		return a.session.Refresh(ctx)
	case a.config.DevUser != "":
		return a.Login(ctx, []string{"dev", a.config.DevUser})
	}
	return a.Login(ctx, nil)
}

// Login sets a new bearer token and resolves the identity behind it.
//
//	login                        prompt for a token without echo
//	login dev <userId> [operator] ask a development server for a token
func (a *App) Login(ctx context.Context, args []string) error {
	var token string
	switch {
	case len(args) == 0:
		t, err := getSecret("Access token", a.out)
		if err != nil {
			return err
		}
		token = t
	case args[0] == "dev" && len(args) >= 2:
		role := ""
		if len(args) > 2 && args[2] == operatorRole {
			role = operatorRole
		}
		t, err := a.api.DevToken(ctx, args[1], role)
		if err != nil {
			return fmt.Errorf("development token: %w", err)
		}
		token = t
	default:
		return errors.New("usage: login [dev <userId> [operator]]")
	}
	if token == "" {
		return fmt.Errorf("empty token: %w", common.ErrorUnauthorized)
	}

	a.api.SetToken(token)
	if err := a.session.Refresh(ctx); err != nil {
		return err
	}
	return a.WhoAmI(ctx, nil)
}

func (a *App) Logout(ctx context.Context, _ []string) error {
	a.api.SetToken("")
	// an unauthenticated lookup fails; the session resets either way
	_ = a.session.Refresh(ctx)
	a.area().Clear()
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *App) WhoAmI(_ context.Context, _ []string) error {
	s := a.session.Current()
	if !s.Authenticated {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "User:         %s\n", s.UserID)
	if s.ProfessionalProfileID != "" {
		fmt.Fprintf(a.out, "Professional: %s (verified: %t)\n", s.ProfessionalProfileID, s.VerifiedProfessional)
	}
	if s.Operator {
		fmt.Fprintln(a.out, "Role:         operator")
	}
	return nil
}
