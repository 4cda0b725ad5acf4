package terminal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// DefaultProfileName names the profile used when none is requested.
const DefaultProfileName = "default"

// ErrUnknownProfile is returned when a profile name is not defined.
var ErrUnknownProfile = errors.New("unknown shell profile")

// Profile describes how to spawn a shell.
type Profile struct {
	Name    string            `json:"name" yaml:"name" toml:"name"`
	Command string            `json:"command" yaml:"command" toml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args" toml:"args"`
	Dir     string            `json:"dir,omitempty" yaml:"dir" toml:"dir"`
	Env     map[string]string `json:"env,omitempty" yaml:"env" toml:"env"`
	PTY     bool              `json:"pty" yaml:"pty" toml:"pty"`
	Cols    int               `json:"cols,omitempty" yaml:"cols" toml:"cols"`
	Rows    int               `json:"rows,omitempty" yaml:"rows" toml:"rows"`
}

// WithDefaults fills unset fields from the environment.
func (p Profile) WithDefaults() Profile {
	if p.Name == "" {
		p.Name = DefaultProfileName
	}
	if p.Command == "" {
		p.Command = os.Getenv("SHELL")
		if p.Command == "" {
			p.Command = "/bin/sh"
		}
	}
	if p.Dir == "" {
		p.Dir = os.Getenv("HOME")
		if p.Dir == "" {
			p.Dir = os.TempDir()
		}
	}
	if p.Cols <= 0 {
		p.Cols = 80
	}
	if p.Rows <= 0 {
		p.Rows = 24
	}
	return p
}

// Environ returns the process environment for the profile.
func (p Profile) Environ() []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	for key, value := range p.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}
	return env
}

// ProfileSet is a named collection of profiles.
type ProfileSet struct {
	Default  string    `yaml:"default" toml:"default"`
	Profiles []Profile `yaml:"profiles" toml:"profiles"`
}

// DefaultProfiles returns a set holding a single profile for the user's shell.
func DefaultProfiles(usePTY bool) *ProfileSet {
	return &ProfileSet{
		Default:  DefaultProfileName,
		Profiles: []Profile{Profile{Name: DefaultProfileName, PTY: usePTY}.WithDefaults()},
	}
}

// LoadProfiles reads a profile set from a .yaml, .yml or .toml file.
func LoadProfiles(path string) (*ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var set ProfileSet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &set)
	case ".toml":
		err = toml.Unmarshal(data, &set)
	default:
		return nil, fmt.Errorf("profiles %s: unsupported format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	if len(set.Profiles) == 0 {
		return nil, fmt.Errorf("profiles %s: no profiles defined", path)
	}

	seen := make(map[string]struct{}, len(set.Profiles))
	for i, p := range set.Profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("profiles %s: profile %d has no name", path, i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("profiles %s: duplicate profile %q", path, p.Name)
		}
		seen[p.Name] = struct{}{}
		set.Profiles[i] = p.WithDefaults()
	}
	if set.Default == "" {
		set.Default = set.Profiles[0].Name
	}
	if _, ok := seen[set.Default]; !ok {
		return nil, fmt.Errorf("profiles %s: default %q: %w", path, set.Default, ErrUnknownProfile)
	}
	return &set, nil
}

// Lookup returns the named profile, or the default one for an empty name.
func (s *ProfileSet) Lookup(name string) (Profile, error) {
	if name == "" {
		name = s.Default
	}
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}
