package config

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/scenegraph/internal/nodeid"
)

// Validate checks the config for:
//   - Required fields
//   - Negative tuning values
//   - Malformed or duplicate kind tags, and duplicate role names within a kind
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Session.DecodeWorkers < 0 {
		errs = append(errs, "session.decode_workers must not be negative")
	}
	if cfg.Session.QueueDepth < 0 {
		errs = append(errs, "session.queue_depth must not be negative")
	}
	if cfg.Session.ImportTimeoutMs < 0 {
		errs = append(errs, "session.import_timeout_ms must not be negative")
	}

	tags := make(map[string]int) // tag → index of first declaration
	for i, k := range cfg.Kinds {
		if k.Tag == "" {
			errs = append(errs, fmt.Sprintf("kinds[%d]: tag is required", i))
			continue
		}
		if !nodeid.ValidTag(k.Tag) {
			errs = append(errs, fmt.Sprintf("kinds[%d]: tag %q must start with a letter and not end in a digit", i, k.Tag))
		}
		if prev, ok := tags[k.Tag]; ok {
			errs = append(errs, fmt.Sprintf("duplicate kind %q (first seen at kinds[%d], again at kinds[%d])", k.Tag, prev, i))
		} else {
			tags[k.Tag] = i
		}
		validateRoles(k, &errs)
	}
	if cfg.Merge.StrictKinds && len(cfg.Kinds) == 0 {
		errs = append(errs, "merge.strict_kinds requires a kinds table")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateRoles(k KindDef, errs *[]string) {
	seen := make(map[string]bool, len(k.Roles))
	for j, r := range k.Roles {
		if r.Name == "" {
			*errs = append(*errs, fmt.Sprintf("kind %s.roles[%d]: name is required", k.Tag, j))
			continue
		}
		if seen[r.Name] {
			*errs = append(*errs, fmt.Sprintf("kind %s: role %q declared twice", k.Tag, r.Name))
		}
		seen[r.Name] = true
		if r.Max < 0 {
			*errs = append(*errs, fmt.Sprintf("kind %s: role %q max must not be negative", k.Tag, r.Name))
		}
	}
}
