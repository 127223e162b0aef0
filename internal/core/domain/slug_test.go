package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// GenerateSlug Tests
// =============================================================================

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		domain string
		seq    int64
		want   string
	}{
		{"classly.ru", 1, "classly-ru-1"},
		{"my-site.com", 255, "my-site-com-ff"},
		{"https://Classly.ru:8080", 42, "classly-ru-2a"},
		{"http://blog.example.com", 10, "blog-example-com-a"},
		{"  weird__name!!.io  ", 3, "weird-name-io-3"},
		{"localhost:3000", 16, "localhost-10"},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateSlug(tt.domain, tt.seq))
		})
	}
}

func TestGenerateSlug_UniquePerSeq(t *testing.T) {
	assert.NotEqual(t, GenerateSlug("a.io", 1), GenerateSlug("a.io", 2))
}
