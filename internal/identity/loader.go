package identity

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// overlayFile is the on-disk format for extending the built-in registry.
type overlayFile struct {
	Identities []overlayEntry `yaml:"identities"`
}

type overlayEntry struct {
	Key          string   `yaml:"key"`
	Fragments    []string `yaml:"fragments"`
	Suffixes     []string `yaml:"suffixes"`
	RangeSources []string `yaml:"range_sources"`
}

// LoadOverlay extends the registry from a YAML file. New keys are appended
// after the built-in table; entries for existing keys add extra fragments,
// suffix patterns, and range sources to the built-in profile. The overlay
// is applied once at startup, before the registry is shared.
func (r *Registry) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read identity overlay: %w", err)
	}

	var file overlayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse identity overlay: %w", err)
	}

	for i, entry := range file.Identities {
		if entry.Key == "" {
			return fmt.Errorf("identity overlay entry %d: missing key", i)
		}
		key := Key(entry.Key)

		suffixes := make([]*regexp.Regexp, 0, len(entry.Suffixes))
		for _, pattern := range entry.Suffixes {
			re, err := regexp.Compile(`(?i)` + pattern)
			if err != nil {
				return fmt.Errorf("identity overlay %s: suffix %q: %w", key, pattern, err)
			}
			suffixes = append(suffixes, re)
		}

		profile, ok := r.profiles[key]
		if !ok {
			// A new key with no fragments could never be classified, so
			// reject the dead entry instead of carrying it silently.
			if len(entry.Fragments) == 0 {
				return fmt.Errorf("identity overlay %s: new key needs at least one fragment", key)
			}
			profile = &Profile{Key: key}
			r.profiles[key] = profile
		}
		profile.Suffixes = append(profile.Suffixes, suffixes...)
		profile.RangeSources = append(profile.RangeSources, entry.RangeSources...)

		r.addFragments(key, entry.Fragments...)
	}

	return nil
}
