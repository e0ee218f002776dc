package hostutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatusURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"   ", ""},

		// Full URLs with a path pass through
		{"https://esi.evetech.net/latest/status/", "https://esi.evetech.net/latest/status/"},
		{"http://localhost:8080/status", "http://localhost:8080/status"},

		// Empty path gets the status path
		{"https://esi.example.com", "https://esi.example.com/latest/status/"},
		{"https://esi.example.com/", "https://esi.example.com/latest/status/"},

		// Bare hosts
		{"esi.evetech.net", "https://esi.evetech.net/latest/status/"},
		{"localhost:8080", "http://localhost:8080/latest/status/"},
		{"127.0.0.1", "http://127.0.0.1/latest/status/"},
		{"mock.localhost/v2/status/", "http://mock.localhost/v2/status/"},

		// localhost.example.com is not localhost
		{"localhost.example.com", "https://localhost.example.com/latest/status/"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeStatusURL(tt.input))
		})
	}
}

func TestRequireSecureURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr string
	}{
		{"https://esi.evetech.net/latest/status/", ""},
		{"http://localhost:3001/status", ""},
		{"http://127.0.0.1:8080", ""},
		{"http://[::1]:3000", ""},
		{"http://mock.localhost", ""},

		{"http://esi.evetech.net/latest/status/", "insecure http://"},
		{"http://localhost.example.com", "insecure http://"},
		{"ftp://esi.evetech.net", "unsupported scheme"},
		{"", "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := RequireSecureURL(tt.input)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestIsLocalhost(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"localhost", true},
		{"localhost:3000", true},
		{"app.localhost", true},
		{"foo.bar.localhost:8080", true},
		{"127.0.0.1", true},
		{"127.0.0.1:3000", true},
		{"[::1]", true},
		{"[::1]:3000", true},

		{"::1", false},
		{"example.com", false},
		{"localhost.example.com", false},
		{"127.0.0.2", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsLocalhost(tt.input))
		})
	}
}
