package model

import (
	"errors"
	"strings"
	"testing"
)

func TestSegmentType_IsValid(t *testing.T) {
	tests := []struct {
		name string
		st   SegmentType
		want bool
		hls  bool
	}{
		{"original is valid", SegmentOriginal, true, false},
		{"ts is valid", SegmentTS, true, true},
		{"fmp4 is valid", SegmentFMP4, true, true},
		{"empty string is invalid", SegmentType(""), false, false},
		{"unknown type is invalid", SegmentType("webm"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.st.IsValid(); got != tt.want {
				t.Errorf("SegmentType.IsValid() = %v, want %v", got, tt.want)
			}
			if got := tt.st.IsHLS(); got != tt.hls {
				t.Errorf("SegmentType.IsHLS() = %v, want %v", got, tt.hls)
			}
		})
	}
}

func TestValidateOriginalName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid name", "holiday.mp4", nil},
		{"empty name", "", ErrEmptyOriginalName},
		{"whitespace name", "   ", ErrEmptyOriginalName},
		{"max length", strings.Repeat("a", 255), nil},
		{"too long", strings.Repeat("a", 256), ErrOriginalNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateOriginalName(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateOriginalName() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPackageFilter_Matches(t *testing.T) {
	pkg := &Package{
		OriginalName: "Holiday Trip.MP4",
		ManifestURL:  "/hls/abc/master.m3u8",
		SegmentType:  SegmentFMP4,
	}

	tests := []struct {
		name   string
		filter PackageFilter
		want   bool
	}{
		{"empty filter matches all", PackageFilter{}, true},
		{"case-insensitive substring", PackageFilter{OriginalName: "trip.mp4"}, true},
		{"no match", PackageFilter{OriginalName: "birthday"}, false},
		{"any field matches", PackageFilter{OriginalName: "birthday", SegmentType: "FMP"}, true},
		{"manifest substring", PackageFilter{ManifestURL: "/hls/"}, true},
		{"segment type mismatch", PackageFilter{SegmentType: "ts"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(pkg); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPackageUpdate(t *testing.T) {
	name := "renamed.mov"
	st := SegmentTS
	pkg := &Package{OriginalName: "a.mov", ManifestURL: "/hls/x/master.m3u8", SegmentType: SegmentFMP4}

	upd := PackageUpdate{OriginalName: &name, SegmentType: &st}
	if upd.IsEmpty() {
		t.Fatal("expected non-empty update")
	}
	if err := upd.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	upd.Apply(pkg)

	if pkg.OriginalName != name {
		t.Errorf("OriginalName = %q, want %q", pkg.OriginalName, name)
	}
	if pkg.SegmentType != SegmentTS {
		t.Errorf("SegmentType = %q, want %q", pkg.SegmentType, SegmentTS)
	}
	if pkg.ManifestURL != "/hls/x/master.m3u8" {
		t.Errorf("ManifestURL changed to %q", pkg.ManifestURL)
	}
}

func TestPackageUpdate_Validate(t *testing.T) {
	empty := ""
	bad := SegmentType("mkv")

	tests := []struct {
		name    string
		upd     PackageUpdate
		wantErr error
	}{
		{"empty update", PackageUpdate{}, nil},
		{"empty name", PackageUpdate{OriginalName: &empty}, ErrEmptyOriginalName},
		{"bad segment type", PackageUpdate{SegmentType: &bad}, ErrInvalidSegmentType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.upd.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
