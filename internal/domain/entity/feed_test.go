package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeed_HealthState(t *testing.T) {
	const threshold = 3

	tests := []struct {
		name     string
		feed     Feed
		expected HealthState
	}{
		{
			name:     "zero failures is healthy",
			feed:     Feed{IsActive: true, ConsecutiveFailures: 0},
			expected: HealthHealthy,
		},
		{
			name:     "one failure is degraded",
			feed:     Feed{IsActive: true, ConsecutiveFailures: 1},
			expected: HealthDegraded,
		},
		{
			name:     "just below threshold is degraded",
			feed:     Feed{IsActive: true, ConsecutiveFailures: 2},
			expected: HealthDegraded,
		},
		{
			name:     "at threshold is unhealthy",
			feed:     Feed{IsActive: true, ConsecutiveFailures: 3},
			expected: HealthUnhealthy,
		},
		{
			name:     "far past threshold is unhealthy",
			feed:     Feed{IsActive: true, ConsecutiveFailures: 9},
			expected: HealthUnhealthy,
		},
		{
			name:     "deactivated feed is inactive regardless of counters",
			feed:     Feed{IsActive: false, ConsecutiveFailures: 0},
			expected: HealthInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.feed.HealthState(threshold))
		})
	}
}

func TestFeed_Validate(t *testing.T) {
	tests := []struct {
		name    string
		feed    Feed
		wantErr bool
	}{
		{
			name:    "valid feed",
			feed:    Feed{URL: "https://example.com/feed.xml", SiteURL: "https://example.com"},
			wantErr: false,
		},
		{
			name:    "valid feed without site URL",
			feed:    Feed{URL: "https://example.com/feed.xml"},
			wantErr: false,
		},
		{
			name:    "missing URL",
			feed:    Feed{},
			wantErr: true,
		},
		{
			name:    "non-http scheme",
			feed:    Feed{URL: "ftp://example.com/feed.xml"},
			wantErr: true,
		},
		{
			name:    "bad site URL",
			feed:    Feed{URL: "https://example.com/feed.xml", SiteURL: "javascript:alert(1)"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.feed.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
