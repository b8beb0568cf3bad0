package sqlmigration_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aqasim81/data-migration-runner/internal/sqlmigration"
)

func TestSort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "already sorted stays sorted", input: []string{"001", "002", "003"}, expected: []string{"001", "002", "003"}},
		{name: "reverse order is corrected", input: []string{"003", "002", "001"}, expected: []string{"001", "002", "003"}},
		{
			name:     "timestamp versions sort correctly",
			input:    []string{"20240201120000", "20240101120000", "20240301120000"},
			expected: []string{"20240101120000", "20240201120000", "20240301120000"},
		},
		{name: "empty slice returns empty", input: []string{}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			input := make([]sqlmigration.File, len(tt.input))
			for i, v := range tt.input {
				input[i] = sqlmigration.File{Version: v}
			}

			sorted := sqlmigration.Sort(input)

			got := make([]string, len(sorted))
			for i, f := range sorted {
				got[i] = f.Version
			}

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSort_isStableAndDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := []sqlmigration.File{
		{Version: "002", Name: "first"},
		{Version: "001", Name: "x"},
		{Version: "002", Name: "second"},
	}

	sorted := sqlmigration.Sort(input)

	assert.Equal(t, "x", sorted[0].Name)
	assert.Equal(t, "first", sorted[1].Name)
	assert.Equal(t, "second", sorted[2].Name)
	assert.Equal(t, "first", input[0].Name)
}

func TestComputeChecksum(t *testing.T) {
	t.Parallel()

	a := sqlmigration.ComputeChecksum("SELECT 1;")
	assert.Len(t, a, 64)
	assert.Equal(t, a, sqlmigration.ComputeChecksum("SELECT 1;"))
	assert.NotEqual(t, a, sqlmigration.ComputeChecksum("SELECT 2;"))
}
