package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Subscription is one entry in the declarative feed roster file.
type Subscription struct {
	// URL is the feed document URL. Required; must be absolute http or
	// https.
	URL string `yaml:"url"`

	// Title seeds the display title for a feed the store has not seen
	// yet. The first successful fetch overwrites it with the channel
	// title. Optional.
	Title string `yaml:"title"`
}

// SubscriptionsFile represents the on-disk roster format:
//
//	subscriptions:
//	  - url: https://example.org/feed.atom
//	    title: Example Blog
//	  - url: https://blog.example.net/rss
type SubscriptionsFile struct {
	Subscriptions []Subscription `yaml:"subscriptions"`
}

// LoadSubscriptions loads the declarative feed roster from a YAML file.
// The path parameter is expected to come from a trusted source (environment variable or command-line argument).
func LoadSubscriptions(path string) ([]Subscription, error) {
	// #nosec G304 -- path is provided by trusted source (env var or CLI arg), not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}

	var file SubscriptionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions file: %w", err)
	}

	if err := validateSubscriptions(file.Subscriptions); err != nil {
		return nil, fmt.Errorf("subscriptions validation failed: %w", err)
	}

	return file.Subscriptions, nil
}

// validateSubscriptions checks every roster entry and rejects duplicates.
func validateSubscriptions(subs []Subscription) error {
	seen := make(map[string]struct{}, len(subs))
	for i, sub := range subs {
		if sub.URL == "" {
			return fmt.Errorf("subscription %d: url is required", i+1)
		}

		u, err := url.Parse(sub.URL)
		if err != nil {
			return fmt.Errorf("subscription %d: invalid url %q: %w", i+1, sub.URL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("subscription %d: url must be absolute http or https: %q", i+1, sub.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("subscription %d: url has no host: %q", i+1, sub.URL)
		}

		if _, dup := seen[sub.URL]; dup {
			return fmt.Errorf("subscription %d: duplicate url %q", i+1, sub.URL)
		}
		seen[sub.URL] = struct{}{}
	}
	return nil
}
