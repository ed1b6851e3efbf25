package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHas(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required string
		want     bool
	}{
		{"resource wildcard grants action", []string{"projects:*"}, "projects:read", true},
		{"exact grant", []string{"projects:read"}, "projects:read", true},
		{"different action denied", []string{"projects:read"}, "projects:write", false},
		{"global wildcard grants anything", []string{"*"}, "exports:write", true},
		{"global wildcard grants bare resource", []string{"*"}, "projects", true},
		{"unrelated resource denied", []string{"projects:*"}, "exports:read", false},
		{"empty grant denies", nil, "projects:read", false},
		{"bare required matches identical grant", []string{"projects"}, "projects", true},
		{"bare required not matched by resource wildcard", []string{"projects:*"}, "projects", false},
		{"one of several grants", []string{"exports:read", "projects:write"}, "projects:write", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Has(tt.granted, tt.required))
		})
	}
}

func TestIsSubset(t *testing.T) {
	tests := []struct {
		name      string
		candidate []string
		current   []string
		want      bool
	}{
		{"empty is subset of anything", nil, []string{"a:b"}, true},
		{"identical", []string{"a:b"}, []string{"a:b"}, true},
		{"proper subset", []string{"a:b"}, []string{"a:b", "c:d"}, true},
		{"expansion rejected", []string{"a:b", "c:d"}, []string{"a:b"}, false},
		{"wildcard does not absorb", []string{"projects:read"}, []string{"projects:*"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSubset(tt.candidate, tt.current))
		})
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		scope string
		want  bool
	}{
		{"*", true},
		{"projects:read", true},
		{"projects:*", true},
		{"projects", false},
		{"projects:", false},
		{":read", false},
		{"a:b:c", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.scope))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t,
		[]string{"a:b", "c:d"},
		Normalize([]string{"a:b", "c:d", "a:b"}),
	)
}
