package state

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadProfile reads a profile state file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("state: %s is empty", path)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", path, err)
	}
	if profile.Mica.Version == "" {
		profile.Mica.Version = Version
	}
	return &profile, nil
}

// MarshalProject encodes a project as YAML for display.
func MarshalProject(p *Project) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("state: encode project: %w", err)
	}
	return data, nil
}

// MarshalProfile encodes a profile as it is stored on disk.
func MarshalProfile(p *Profile) ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("state: encode profile: %w", err)
	}
	return data, nil
}
