package digest

import (
	"errors"
	"testing"

	"github.com/blobshard/blobshard/internal/bhex"
	"github.com/blobshard/blobshard/internal/storeerr"
)

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		wantLen int
	}{
		{"md5", 16},
		{"sha1", 20},
		{"sha256", 32},
		{"blake3", 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ByName(tt.name)
			if err != nil {
				t.Fatalf("ByName(%q) error = %v", tt.name, err)
			}
			if a.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", a.Len(), tt.wantLen)
			}
			h := a.New()
			h.Write([]byte("hello"))
			if len(h.Sum(nil)) != tt.wantLen {
				t.Errorf("Sum() length = %d, want %d", len(h.Sum(nil)), tt.wantLen)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	_, err := ByName("md17")
	if err == nil {
		t.Fatal("ByName() error = nil, want error")
	}
	var se *storeerr.Error
	if !errors.As(err, &se) || se.Kind != storeerr.UnknownAlgorithm {
		t.Errorf("error kind = %v, want UnknownAlgorithm", err)
	}
}

func TestSHA256KnownVector(t *testing.T) {
	a, _ := ByName("sha256")
	h := a.New()
	h.Write([]byte("This is a test"))
	got := h.Sum(nil)
	want := "c7be1ed902fb8dd4d48997c6452f5d7e509fbcdbe2808b16bcf4edce4c07d14e"
	if bhex.Encode(got) != want {
		t.Errorf("sha256(%q) = %x, want %s", "This is a test", got, want)
	}
}
