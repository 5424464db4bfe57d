package validation

import "testing"

func TestIsValidTelegramUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     bool
	}{
		{"valid", "vape_buyer", true},
		{"valid with at", "@vape_buyer", true},
		{"minimum length", "abcde", true},
		{"too short", "abcd", false},
		{"too long", "a123456789012345678901234567890123", false},
		{"cyrillic", "покупатель", false},
		{"space", "vape buyer", false},
		{"empty", "", false},
		{"only at", "@", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTelegramUsername(tt.username); got != tt.want {
				t.Errorf("IsValidTelegramUsername(%q) = %v, want %v", tt.username, got, tt.want)
			}
		})
	}
}

func TestNormalizeTelegramUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@buyer", "buyer"},
		{"  @buyer  ", "buyer"},
		{"buyer", "buyer"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeTelegramUsername(tt.in); got != tt.want {
			t.Errorf("NormalizeTelegramUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  bool
	}{
		{"belarus mobile", "+375291234567", true},
		{"with separators", "+375 (29) 123-45-67", true},
		{"without plus", "80291234567", true},
		{"too short", "+12345", false},
		{"too long", "+1234567890123456", false},
		{"letters", "+37529abc4567", false},
		{"plus not leading", "375+291234567", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPhone(tt.phone); got != tt.want {
				t.Errorf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
			}
		})
	}
}
