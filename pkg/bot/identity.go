package bot

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultIdentityDir is the per-bot identity location, one keypair per
// bot name.
func DefaultIdentityDir(botName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".rogue-talk", "bots", botName), nil
}
