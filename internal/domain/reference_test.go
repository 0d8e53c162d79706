package domain

import "testing"

func TestExtractOrderReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantOK  bool
	}{
		{name: "alphanumeric reference", header: "Rechnung zum Auftrag #PE4994", want: "PE4994", wantOK: true},
		{name: "numeric reference", header: "Rechnung zum Auftrag #1001", want: "1001", wantOK: true},
		{name: "lowercase reference is normalized", header: "Auftrag #pe4994", want: "PE4994", wantOK: true},
		{name: "first token wins", header: "#1001 ersetzt #1002", want: "1001", wantOK: true},
		{name: "no token", header: "Rechnung Februar 2026"},
		{name: "empty header", header: ""},
		{name: "whitespace only", header: "   "},
		{name: "cancellation marker", header: "Stornorechnung zum Auftrag #1001"},
		{name: "cancellation marker uppercase", header: "STORNO #PE4994"},
		{name: "bare hash", header: "Auftrag # offen"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := ExtractOrderReference(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("ExtractOrderReference(%q) ok = %v, want %v", tt.header, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Fatalf("ExtractOrderReference(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
