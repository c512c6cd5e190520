package msisdn

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"local zero prefix", "0712345678", "254712345678"},
		{"international plus", "+254712345678", "254712345678"},
		{"already canonical", "254712345678", "254712345678"},
		{"bare nine digits", "712345678", "254712345678"},
		{"bare one-series", "112345678", "254112345678"},
		{"double zero idd prefix", "00254712345678", "254712345678"},
		{"doubled leading zero", "00712345678", "254712345678"},
		{"spaces and dashes", "+254 712-345-678", "254712345678"},
		{"landline normalizes but stays invalid", "0203456789", "254203456789"},
		{"too short", "07123", ""},
		{"too long", "2547123456789", ""},
		{"empty", "", ""},
		{"letters only", "phone", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"0712345678", "+254712345678", "254112345678", "712345678", "0203456789", "garbage"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"254712345678", true},
		{"254112345678", true},
		{"254203456789", false}, // landline range
		{"25471234567", false},
		{"2547123456789", false},
		{"07123456789", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   int64
		wantOK bool
	}{
		{"integer float", float64(100), 100, true},
		{"minimum", float64(1), 1, true},
		{"rounds down", 1.4, 1, true},
		{"rounds up", 49.5, 50, true},
		{"numeric string", "100", 100, true},
		{"decimal string", "99.7", 100, true},
		{"int input", 250, 250, true},
		{"zero", float64(0), 0, false},
		{"negative", float64(-5), 0, false},
		{"rounds below one", 0.4, 0, false},
		{"non-numeric string", "abc", 0, false},
		{"not a number", math.NaN(), 0, false},
		{"positive infinity", math.Inf(1), 0, false},
		{"empty string", "", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeAmount(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("NormalizeAmount(%v) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
