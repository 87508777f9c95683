// Package ui handles the interactive parts of the command line:
// picking an API variant and filling in missing credentials.
package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/olegsh/myshows-backup/internal/myshows"
	"github.com/olegsh/myshows-backup/internal/secret"
)

var stdin = bufio.NewReader(os.Stdin)

func promptLine(label string) (string, error) {
	fmt.Printf("%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

// SelectVariant asks which API to use when no flag decided it.
func SelectVariant() (myshows.Variant, error) {
	fmt.Println("Select API version:")
	fmt.Println("  1. legacy (username/password)")
	fmt.Println("  2. OAuth")
	for {
		choice, err := promptLine("Enter 1 or 2")
		if err != nil {
			return "", err
		}
		switch choice {
		case "1":
			return myshows.VariantLegacy, nil
		case "2":
			return myshows.VariantOAuth, nil
		}
		fmt.Println("Invalid choice.")
	}
}

// LegacyCredentials fills the fields of cfg the environment left empty
// by asking on stdin.
func LegacyCredentials(cfg *myshows.LegacyConfig) error {
	var err error
	if cfg.Username == "" {
		if cfg.Username, err = promptLine("Username"); err != nil {
			return err
		}
	}
	if cfg.Password.Get() == "" {
		v, err := promptLine("Password")
		if err != nil {
			return err
		}
		cfg.Password = secret.New(v)
	}
	return nil
}

// OAuthCredentials fills the fields of cfg the environment left empty
// by asking on stdin.
func OAuthCredentials(cfg *myshows.OAuthConfig) error {
	fmt.Println("OAuth credentials are handed out by api@myshows.me")
	var err error
	if cfg.ClientID == "" {
		if cfg.ClientID, err = promptLine("Client ID"); err != nil {
			return err
		}
	}
	if cfg.ClientSecret.Get() == "" {
		v, err := promptLine("Client Secret")
		if err != nil {
			return err
		}
		cfg.ClientSecret = secret.New(v)
	}
	if cfg.Username == "" {
		if cfg.Username, err = promptLine("Username"); err != nil {
			return err
		}
	}
	if cfg.Password.Get() == "" {
		v, err := promptLine("Password")
		if err != nil {
			return err
		}
		cfg.Password = secret.New(v)
	}
	return nil
}
