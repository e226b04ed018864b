package config

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "empty",
			in:   map[string]any{},
			want: map[string]any{},
		},
		{
			name: "top level scalars",
			in:   map[string]any{"log_level": "info", "max_concurrent": 4.0},
			want: map[string]any{"log_level": "info", "max_concurrent": 4.0},
		},
		{
			name: "backend sections",
			in: map[string]any{
				"backend": map[string]any{"kind": "local"},
				"local":   map[string]any{"base_url": "http://localhost:8080", "timeout": 120.0},
			},
			want: map[string]any{
				"backend.kind":   "local",
				"local.base_url": "http://localhost:8080",
				"local.timeout":  120.0,
			},
		},
		{
			name: "custom windows",
			in: map[string]any{
				"custom_windows": map[string]any{"2h": "2h0m0s", "90d": "2160h"},
			},
			want: map[string]any{
				"custom_windows.2h":  "2h0m0s",
				"custom_windows.90d": "2160h",
			},
		},
		{
			name: "empty object yields nothing",
			in:   map[string]any{"custom_windows": map[string]any{}},
			want: map[string]any{},
		},
		{
			name: "arrays stay whole",
			in: map[string]any{
				"scheduled_insights": []any{map[string]any{"name": "daily"}},
			},
			want: map[string]any{
				"scheduled_insights": []any{map[string]any{"name": "daily"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Flatten() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnflatten(t *testing.T) {
	got := Unflatten(map[string]any{
		"log_level":         "debug",
		"telegram.chat_id":  42.0,
		"telegram.token":    "123:abc",
		"remote.model":      "gpt-4o-mini",
		"custom_windows.2h": "2h",
		"http.enabled":      true,
	})
	want := map[string]any{
		"log_level":      "debug",
		"telegram":       map[string]any{"chat_id": 42.0, "token": "123:abc"},
		"remote":         map[string]any{"model": "gpt-4o-mini"},
		"custom_windows": map[string]any{"2h": "2h"},
		"http":           map[string]any{"enabled": true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unflatten() = %v, want %v", got, want)
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.insightflow",
		"log_level": "debug",
		"remote": map[string]any{
			"endpoint": "https://example.openai.azure.com",
			"api_key":  "sk-test123456",
			"model":    "gpt-4o-mini",
		},
		"telegram": map[string]any{"token": "bot-token-abc"},
	}
	if got := Unflatten(Flatten(original)); !reflect.DeepEqual(got, original) {
		t.Errorf("round trip = %v, want %v", got, original)
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"remote.api_key", "sk-test123456", "***3456"},
		{"telegram.token", "123456:ABCdefGHIjkl", "***Ijkl"},
		{"remote.api_key", "", ""},
		{"remote.api_key", "ab", "***"},
		{"telegram.token", "12345678", "***"},
		{"remote.model", "gpt-4o-mini", "gpt-4o-mini"},
		{"log_level", "info", "info"},
	}
	for _, tt := range tests {
		got := MaskSecrets(map[string]any{tt.key: tt.value})
		if got[tt.key] != tt.want {
			t.Errorf("MaskSecrets(%s=%q) = %v, want %q", tt.key, tt.value, got[tt.key], tt.want)
		}
	}
}

func TestMaskSecrets_LeavesNonStrings(t *testing.T) {
	flat := map[string]any{"telegram.chat_id": 42.0, "http.enabled": true}
	got := MaskSecrets(flat)
	if !reflect.DeepEqual(got, flat) {
		t.Errorf("expected non-secret values unchanged, got %v", got)
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("remote.api_key") || !IsSecretKey("telegram.token") {
		t.Error("expected credential keys to be secret")
	}
	if IsSecretKey("local.model") {
		t.Error("local.model is not a secret")
	}
}
