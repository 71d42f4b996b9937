package validation

import (
	"strings"
	"testing"
)

func TestValidateProductID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid IDs
		{"simple", "mat_a", false},
		{"single char", "a", false},
		{"generated slug", "product_airweave_s03", false},
		{"hangul slug", "product_시몬스_뷰티레스트", false},
		{"hash suffix", "product_sealy_crown_jewel_1a2b3c4d", false},
		{"duplicate suffix", "mat_basic_2", false},
		{"dot and hyphen", "sku.mt-900", false},
		{"all digits", "20250101", false},

		// Invalid IDs - injection attempts
		{"empty", "", true},
		{"graphql injection", `mat_a"}) { Get { Products } }`, true},
		{"where filter injection", `mat_a" OR path:["brand"]`, true},
		{"newline injection", "mat_a\nvalueString", true},
		{"path traversal", "../../../etc/passwd", true},
		{"spaces", "mat a", true},
		{"quotes", `mat"a`, true},
		{"braces", "mat{a}", true},
		{"too long", strings.Repeat("a", 65), true},
		{"starts with dot", ".mat_a", true},
		{"starts with hyphen", "-mat_a", true},
		{"starts with underscore", "_mat_a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProductID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProductID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateProductIDs(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all valid", []string{"mat_a", "mat_b", "product_airweave_s03"}, false},
		{"one invalid", []string{"mat_a", "bad id!", "mat_b"}, true},
		{"all invalid", []string{"mat a", `x"`}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProductIDs(tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProductIDs(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeProductID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "mat_a", "mat_a", false},
		{"spaces trimmed", "  mat_a  ", "mat_a", false},
		{"case preserved", "MatA", "MatA", false},
		{"hangul preserved", " product_에이스_침대 ", "product_에이스_침대", false},
		{"invalid rejected", "bad id!", "", true},
		{"empty rejected", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeProductID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeProductID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeProductID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
