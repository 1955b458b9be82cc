package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"student", RoleStudent, false},
		{"teacher", RoleTeacher, false},
		{"", "", true},
		{"Teacher", "", true},
		{"principal", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidRole, "input %q", tt.in)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestPlaceholderName(t *testing.T) {
	require.Equal(t, "user-42", PlaceholderName("42"))
}
