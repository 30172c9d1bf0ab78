package input

import "testing"

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"100B", 100, false},
		{"10KB", 10000, false},
		{"10KiB", 10240, false},
		{"1MB", 1000000, false},
		{"1MiB", 1048576, false},
		{" 2 GiB ", 2 * 1024 * 1024 * 1024, false},
		{"", 0, true},
		{"fast", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{-1, "-1 B"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(2048, 2); got != "1.0 KiB/s" {
		t.Errorf("FormatRate(2048, 2) = %q, want 1.0 KiB/s", got)
	}
	if got := FormatRate(100, 0); got != "n/a" {
		t.Errorf("FormatRate(100, 0) = %q, want n/a", got)
	}
}
