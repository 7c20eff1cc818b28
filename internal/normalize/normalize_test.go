package normalize

import "testing"

func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"spaces and dashes", "+34 600-111-222", "+34600111222"},
		{"plain digits", "600111222", "600111222"},
		{"parentheses", "(600) 111 222", "600111222"},
		{"plus not leading", "600+111", "600111"},
		{"letters only", "call me", ""},
		{"lone plus", "+", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Phone(tt.in); got != tt.want {
				t.Errorf("Phone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhoneKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"country prefix dropped", "+34 600 111 222", "600111222"},
		{"bare national", "600111222", "600111222"},
		{"short number", "112", "112"},
		{"no digits", "unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhoneKey(tt.in); got != tt.want {
				t.Errorf("PhoneKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Jane.Doe@Example.COM ", "jane.doe@example.com"},
		{"x@y.z", "x@y.z"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Email(tt.in); got != tt.want {
			t.Errorf("Email(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Jane   Doe ", "jane doe"},
		{"CARLOS\tRuiz", "carlos ruiz"},
		{"single", "single"},
		{"", ""},
		{" \t\n ", ""},
	}
	for _, tt := range tests {
		if got := Name(tt.in); got != tt.want {
			t.Errorf("Name(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
