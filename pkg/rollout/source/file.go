package source

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/callisto/pkg/policy"
)

var (
	// ErrEmptyDocument is returned when the policy file parses to nothing.
	ErrEmptyDocument = errors.New("policy file is empty")

	// ErrMissingID is returned when the parsed policy has no ID.
	ErrMissingID = errors.New("policy file is missing an id")
)

// LoadFile reads and parses a single policy document from path.
func LoadFile(path string) (*policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file %q: %w", path, err)
	}

	var p policy.Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing policy file %q: %w", path, err)
	}

	if p.ID == "" && p.Version == "" && p.Custom == nil {
		return nil, fmt.Errorf("%w: %q", ErrEmptyDocument, path)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: %q", ErrMissingID, path)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	return &p, nil
}
