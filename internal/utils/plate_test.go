package utils

import "testing"

func TestNormalizePlate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ab-12 cd!", "AB-12CD"},
		{"ab 12", "AB12"},
		{"  kz 777 abc 02\n", "KZ777ABC02"},
		{"a1", "A1"},
		{"", ""},
		{"é-ß_42", "-42"},
		{"---", "---"},
	}

	for _, tt := range tests {
		if got := NormalizePlate(tt.in); got != tt.want {
			t.Errorf("NormalizePlate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolvePlate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ab 12", "AB12"},
		{"ab-12 cd!", "AB-12CD"},
		{"a1", "UNKNOWN"},
		{"", "UNKNOWN"},
		{"!!!!", "UNKNOWN"},
		{"abc", "UNKNOWN"},
		{"abcd", "ABCD"},
	}

	for _, tt := range tests {
		if got := ResolvePlate(tt.in); got != tt.want {
			t.Errorf("ResolvePlate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
