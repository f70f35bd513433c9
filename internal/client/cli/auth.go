package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/quillnotes/quill/internal/client/client"
	"github.com/quillnotes/quill/internal/cryptox"
)

// getSimpleText and getPassword are indirections used to facilitate
// testing. They point to interactive input helpers and can be swapped in
// tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts the user for an email and password and attempts to
// create a new account.
//
// On success it prints "Success!" and returns nil. The password byte
// slice is wiped before returning. Any I/O or service error is returned
// unchanged.
func (a *App) Register(ctx context.Context) error {
	identifier, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)

	if err := a.auth.Register(ctx, identifier, password); err != nil {
		fmt.Println("Registration failed:", err)
		return err
	}

	fmt.Println("Success!")
	return nil
}

// Login prompts the user for credentials and tries to authenticate.
//
// The method first attempts an online login. If the server is
// unavailable (errors.Is(err, client.ErrUnavailable)), it falls back to
// offline login against locally cached material. On success it updates
// connectivity Mode:
//   - ModeOnline if online login succeeds,
//   - ModeOffline if offline login succeeds,
//   - ModeDisabled if both fail.
//
// The password is wiped before returning. A nil error does not
// necessarily imply ModeOnline; inspect App.Mode for the final state.
func (a *App) Login(ctx context.Context) error {
	identifier, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)

	var mode Mode

	err = a.auth.OnlineLogin(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, client.ErrUnavailable) {
			fmt.Println("Server unavailable, trying offline login...")
			if err := a.auth.OfflineLogin(ctx, identifier, password); err != nil {
				fmt.Println("Offline login unsuccessful:", err)
				mode = ModeDisabled
			} else {
				fmt.Println("Offline login successful")
				mode = ModeOffline
			}
		} else {
			fmt.Println("Login unsuccessful:", err)
			mode = ModeDisabled
		}
	} else {
		fmt.Println("Login successful")
		mode = ModeOnline
	}

	a.setMode(mode)
	return nil
}

// Logout removes the in-memory master key and clears locally cached
// offline-login material.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.SignOut(ctx); err != nil {
		return err
	}
	if err := a.auth.ClearOfflineData(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}
