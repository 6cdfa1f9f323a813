package masking

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abcd", "****"},
		{"abcdefgh", "****efgh"},
		{"tok_abcdefgh", "tok_****efgh"},
		{"tok_", "****"},
		{"  spaced  ", "****aced"},
	}
	for _, tc := range cases {
		if got := MaskSecret(tc.in); got != tc.want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
