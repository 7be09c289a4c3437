package auth

import (
	"testing"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		presented string
		want      bool
	}{
		{
			name:      "matching token",
			token:     "dev_token",
			presented: "dev_token",
			want:      true,
		},
		{
			name:      "mismatched token",
			token:     "dev_token",
			presented: "wrong_token",
			want:      false,
		},
		{
			name:      "missing header with token configured",
			token:     "dev_token",
			presented: "",
			want:      false,
		},
		{
			name:      "token is a prefix of presented value",
			token:     "dev_token",
			presented: "dev_token_extra",
			want:      false,
		},
		{
			name:      "presented value is a prefix of token",
			token:     "dev_token",
			presented: "dev",
			want:      false,
		},
		{
			name:      "no token configured allows everything",
			token:     "",
			presented: "",
			want:      true,
		},
		{
			name:      "no token configured ignores presented value",
			token:     "",
			presented: "anything",
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.token)
			if got := gate.Authorize(tt.presented); got != tt.want {
				t.Errorf("Authorize(%q) with token %q = %v, want %v",
					tt.presented, tt.token, got, tt.want)
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	if NewGate("").Enabled() {
		t.Error("gate with empty token should report disabled")
	}

	if !NewGate("secret").Enabled() {
		t.Error("gate with token should report enabled")
	}
}
