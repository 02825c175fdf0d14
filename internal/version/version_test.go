package version

import "testing"

func TestGet(t *testing.T) {
	tests := []struct {
		name   string
		commit string
		want   string
	}{
		{"release only", "", "0.1.0"},
		{"short commit", "abc123", "0.1.0+abc123"},
		{"long commit truncated", "0123456789abcdef0123", "0.1.0+0123456789ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := Commit
			Commit = tt.commit
			defer func() { Commit = old }()

			if got := Get(); got != tt.want {
				t.Errorf("Get() = %q, want %q", got, tt.want)
			}
		})
	}
}
