package version

import "testing"

func withVersion(t *testing.T, v string) {
	t.Helper()
	prev := Version
	Version = v
	t.Cleanup(func() { Version = prev })
}

func TestStrings(t *testing.T) {
	tests := []struct {
		version   string
		dev       bool
		full      string
		userAgent string
	}{
		{"dev", true, "esigate version dev (built from source)", "esigate;dev"},
		{"1.2.3", false, "esigate version 1.2.3", "esigate;1.2.3"},
		{"v0.4.0-rc1", false, "esigate version v0.4.0-rc1", "esigate;v0.4.0-rc1"},
		{"", false, "esigate version ", "esigate;"},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withVersion(t, tt.version)

			if got := IsDev(); got != tt.dev {
				t.Errorf("IsDev() = %v, want %v", got, tt.dev)
			}
			if got := Full(); got != tt.full {
				t.Errorf("Full() = %q, want %q", got, tt.full)
			}
			if got := UserAgent(); got != tt.userAgent {
				t.Errorf("UserAgent() = %q, want %q", got, tt.userAgent)
			}
		})
	}
}
