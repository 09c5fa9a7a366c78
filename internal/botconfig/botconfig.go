// Package botconfig loads per-bot configuration: INI-style files of
// `key = value` sections, one file per bot, resolved by bot name under a
// configured bots directory. Files are read fresh on every request so
// operators can edit them without restarting the runtime.
package botconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrNotFound is returned when no configuration file exists for a bot.
var ErrNotFound = errors.New("bot config not found")

// ParseError reports a configuration file that exists but cannot be used:
// malformed INI syntax or a missing section.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse bot config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error means the bot has no config file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Loader resolves bot names to configuration files under a base directory.
// Layout: {dir}/{bot_name}/{bot_name}.conf
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at the given bots directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Path returns the configuration file path for a bot.
func (l *Loader) Path(botName string) string {
	return filepath.Join(l.dir, botName, botName+".conf")
}

// LoadSection reads the named section of a bot's configuration file and
// returns it as an option-name to value map. An empty section name loads
// the section named after the bot. Implements bothandler.ConfigLoader.
func (l *Loader) LoadSection(botName, section string) (map[string]string, error) {
	if err := validateBotName(botName); err != nil {
		return nil, err
	}
	if section == "" {
		section = botName
	}

	path := l.Path(botName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no config file for bot %q at %s", ErrNotFound, botName, path)
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	sec, err := cfg.GetSection(section)
	if err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("missing section %q", section)}
	}

	return sec.KeysHash(), nil
}

// validateBotName rejects names that would escape the bots directory.
func validateBotName(botName string) error {
	if botName == "" {
		return fmt.Errorf("bot name cannot be empty")
	}
	if strings.ContainsAny(botName, `/\`) || strings.Contains(botName, "..") {
		return fmt.Errorf("invalid bot name: %q", botName)
	}
	return nil
}
