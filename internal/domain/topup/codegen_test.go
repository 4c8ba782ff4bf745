package topup_test

import (
	"strings"
	"testing"

	"github.com/datban/datban-api/internal/domain/topup"
)

func TestCodecGenerate(t *testing.T) {
	codec := topup.NewCodec("DD")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := codec.Generate()
		if err != nil {
			t.Fatalf("generate failed: %v", err)
		}
		if !strings.HasPrefix(code, "DD") {
			t.Fatalf("code %q missing prefix", code)
		}
		if len(code) != len("DD")+8 {
			t.Fatalf("code %q has wrong length", code)
		}
		for _, c := range code[2:] {
			if c < '0' || c > '9' {
				t.Fatalf("code %q has non-digit suffix", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 95 {
		t.Fatalf("generated codes collide far too often: %d unique of 100", len(seen))
	}
}

func TestCodecExtract(t *testing.T) {
	codec := topup.NewCodec("DD")

	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"bare code", "DD17364822", "DD17364822"},
		{"lowercase", "chuyen tien dd17364822 cam on", "DD17364822"},
		{"mixed case", "Dd17364822", "DD17364822"},
		{"embedded in text", "NAP TIEN DD17364822 NGUYEN VAN A", "DD17364822"},
		{"longer digit run kept whole", "DD173648229999", "DD173648229999"},
		{"first of two codes wins", "DD11111111 then DD22222222", "DD11111111"},
		{"too few digits", "DD1736482", ""},
		{"no code at all", "thanh toan don hang", ""},
		{"empty description", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := codec.Extract(tt.description); got != tt.want {
				t.Fatalf("Extract(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}
