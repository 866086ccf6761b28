package vectorstore

import "testing"

func TestParseDistance(t *testing.T) {
	tests := []struct {
		in      string
		want    Distance
		wantErr bool
	}{
		{"", Cosine, false},
		{"Cosine", Cosine, false},
		{"dot", Dot, false},
		{"euclid", Euclidean, false},
		{"L2", Euclidean, false},
		{"manhattan", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDistance(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDistance(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDistance(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
