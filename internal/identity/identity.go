// Package identity maps declared crawler user agents to canonical
// identity keys and holds the per-crawler verification profiles.
package identity

import (
	"regexp"
	"strings"
)

// Key is the canonical label for a recognized crawler family.
type Key string

// None is returned for user agents that do not claim to be a known crawler.
const None Key = ""

// Recognized crawler families.
const (
	Googlebot   Key = "googlebot"
	Bingbot     Key = "bingbot"
	Applebot    Key = "applebot"
	Yandexbot   Key = "yandexbot"
	Duckduckbot Key = "duckduckbot"
	Baiduspider Key = "baiduspider"
)

// Profile holds the static verification configuration for one crawler family.
type Profile struct {
	Key Key

	// Suffixes are case-insensitive anchored patterns the reverse-DNS
	// hostname must match for the DNS check to proceed.
	Suffixes []*regexp.Regexp

	// RangeSources are URLs publishing the crawler's network prefixes as
	// JSON. Empty when the operator publishes no machine-readable list.
	RangeSources []string
}

// MatchHostname reports whether a reverse-DNS hostname matches any of the
// profile's expected domain suffixes.
func (p *Profile) MatchHostname(name string) bool {
	for _, re := range p.Suffixes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// HasRangeSource reports whether the crawler publishes network ranges.
func (p *Profile) HasRangeSource() bool {
	return len(p.RangeSources) > 0
}

type fragment struct {
	substr string
	key    Key
}

// Registry holds the classifier table and profiles for all recognized
// crawler families. It is built once at startup and immutable afterwards.
type Registry struct {
	fragments []fragment
	profiles  map[Key]*Profile
}

// NewRegistry returns a Registry populated with the built-in crawler table.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[Key]*Profile)}

	// Fragment order matters only where one fragment contains another
	// (yandexbot before yandex); specialized Google agents map to the
	// googlebot family.
	r.addFragments(Googlebot, "googlebot", "google-inspectiontool", "google-read-aloud", "mediapartners-google")
	r.addFragments(Bingbot, "bingbot", "msnbot")
	r.addFragments(Applebot, "applebot")
	r.addFragments(Yandexbot, "yandexbot", "yandex")
	r.addFragments(Duckduckbot, "duckduckbot")
	r.addFragments(Baiduspider, "baiduspider")

	r.profiles[Googlebot] = &Profile{
		Key:      Googlebot,
		Suffixes: compileSuffixes(`googlebot\.com$`, `google\.com$`),
		RangeSources: []string{
			"https://developers.google.com/search/apis/ipranges/googlebot.json",
			"https://developers.google.com/search/apis/ipranges/special-crawlers.json",
		},
	}
	r.profiles[Bingbot] = &Profile{
		Key:      Bingbot,
		Suffixes: compileSuffixes(`search\.msn\.com$`),
	}
	r.profiles[Applebot] = &Profile{
		Key:      Applebot,
		Suffixes: compileSuffixes(`applebot\.apple\.com$`),
	}
	r.profiles[Yandexbot] = &Profile{
		Key:      Yandexbot,
		Suffixes: compileSuffixes(`yandex\.(?:ru|net|com)$`),
	}
	r.profiles[Duckduckbot] = &Profile{
		Key:      Duckduckbot,
		Suffixes: compileSuffixes(`duckduckgo\.com$`),
	}
	r.profiles[Baiduspider] = &Profile{
		Key:      Baiduspider,
		Suffixes: compileSuffixes(`crawl\.baidu\.(?:com|jp)$`),
	}

	return r
}

func (r *Registry) addFragments(key Key, substrs ...string) {
	for _, s := range substrs {
		r.fragments = append(r.fragments, fragment{substr: s, key: key})
	}
}

func compileSuffixes(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile(`(?i)`+p))
	}
	return res
}

// Classify returns the crawler family a user agent claims to be, or None.
// Matching is case-insensitive substring containment; the first matching
// fragment wins. Classify never fails and performs no I/O.
func (r *Registry) Classify(userAgent string) Key {
	ua := strings.ToLower(userAgent)
	for _, f := range r.fragments {
		if strings.Contains(ua, f.substr) {
			return f.key
		}
	}
	return None
}

// Profile returns the profile for a key, or nil if the key is not registered.
func (r *Registry) Profile(key Key) *Profile {
	return r.profiles[key]
}

// Keys returns all registered identity keys in classifier order.
func (r *Registry) Keys() []Key {
	seen := make(map[Key]struct{}, len(r.profiles))
	keys := make([]Key, 0, len(r.profiles))
	for _, f := range r.fragments {
		if _, ok := seen[f.key]; ok {
			continue
		}
		seen[f.key] = struct{}{}
		keys = append(keys, f.key)
	}
	return keys
}
