// Package matchfile loads monitor match rules from TOML documents:
//
//	[[match]]
//	subsystem = "block"
//	devtype = "disk"
//
//	[[match]]
//	tag = "systemd"
//
// and applies them to a monitor before it starts receiving.
package matchfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/uevmon/uevmon/uevent"
)

var ErrEmptyRule = errors.New("match rule has neither subsystem nor tag")

// Match is one rule. Subsystem and Tag may be combined; Devtype without a
// Subsystem is invalid.
type Match struct {
	Subsystem string `toml:"subsystem"`
	Devtype   string `toml:"devtype"`
	Tag       string `toml:"tag"`
}

// File is a parsed match document.
type File struct {
	Matches []Match `toml:"match"`
}

// Parse reads a TOML match document.
func Parse(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var parsed File
	if _, err := toml.NewDecoder(f).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse match file: %w", err)
	}

	for _, match := range parsed.Matches {
		if match.Subsystem == "" && match.Tag == "" {
			return nil, ErrEmptyRule
		}
		if match.Subsystem == "" && match.Devtype != "" {
			return nil, fmt.Errorf("devtype %q given without a subsystem", match.Devtype)
		}
	}

	return &parsed, nil
}

// Apply installs every rule on the monitor. The caller still has to run
// EnableReceiving (or FilterUpdate) afterwards.
func (f *File) Apply(m *uevent.Monitor) error {
	for _, match := range f.Matches {
		if match.Subsystem != "" {
			if err := m.AddMatchSubsystemDevtype(match.Subsystem, match.Devtype); err != nil {
				return err
			}
		}
		if match.Tag != "" {
			if err := m.AddMatchTag(match.Tag); err != nil {
				return err
			}
		}
	}

	return nil
}
