package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SegmentType describes how a package's media is stored.
type SegmentType string

const (
	// SegmentOriginal keeps the uploaded source as-is, without an HLS package.
	SegmentOriginal SegmentType = "original"
	SegmentTS       SegmentType = "ts"
	SegmentFMP4     SegmentType = "fmp4"
)

func (s SegmentType) IsValid() bool {
	switch s {
	case SegmentOriginal, SegmentTS, SegmentFMP4:
		return true
	default:
		return false
	}
}

// IsHLS reports whether the segment type produces an HLS package directory.
func (s SegmentType) IsHLS() bool {
	return s == SegmentTS || s == SegmentFMP4
}

func (s SegmentType) String() string {
	return string(s)
}

// Package is a catalog entry for one ingested video.
type Package struct {
	ID           uuid.UUID
	OriginalName string
	// ManifestURL is the master playlist path for HLS packages, or the stored
	// file path for SegmentOriginal.
	ManifestURL string
	SegmentType SegmentType
	CreatedAt   time.Time
}

var (
	ErrEmptyOriginalName   = errors.New("original name cannot be empty")
	ErrOriginalNameTooLong = errors.New("original name exceeds maximum length of 255 characters")
	ErrInvalidSegmentType  = errors.New("invalid segment type")
)

const maxOriginalNameLength = 255

// ValidateOriginalName checks the user-supplied display name of a package.
func ValidateOriginalName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyOriginalName
	}
	if len(name) > maxOriginalNameLength {
		return ErrOriginalNameTooLong
	}
	return nil
}

// PackageFilter selects catalog entries. Every non-empty field is matched as a
// case-insensitive substring, and an entry matches when any set field matches.
// The zero value matches everything.
type PackageFilter struct {
	OriginalName string
	ManifestURL  string
	SegmentType  string
}

// IsEmpty reports whether no field is set.
func (f PackageFilter) IsEmpty() bool {
	return f.OriginalName == "" && f.ManifestURL == "" && f.SegmentType == ""
}

// Matches reports whether p satisfies the filter.
func (f PackageFilter) Matches(p *Package) bool {
	if f.IsEmpty() {
		return true
	}
	return containsFold(p.OriginalName, f.OriginalName) ||
		containsFold(p.ManifestURL, f.ManifestURL) ||
		containsFold(string(p.SegmentType), f.SegmentType)
}

func containsFold(value, sub string) bool {
	if sub == "" {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(sub))
}

// PackageUpdate carries a partial change; nil fields are left untouched.
type PackageUpdate struct {
	OriginalName *string
	ManifestURL  *string
	SegmentType  *SegmentType
}

// IsEmpty reports whether the update changes nothing.
func (u PackageUpdate) IsEmpty() bool {
	return u.OriginalName == nil && u.ManifestURL == nil && u.SegmentType == nil
}

// Validate checks the fields that are set.
func (u PackageUpdate) Validate() error {
	if u.OriginalName != nil {
		if err := ValidateOriginalName(*u.OriginalName); err != nil {
			return err
		}
	}
	if u.SegmentType != nil && !u.SegmentType.IsValid() {
		return ErrInvalidSegmentType
	}
	return nil
}

// Apply merges the set fields into p.
func (u PackageUpdate) Apply(p *Package) {
	if u.OriginalName != nil {
		p.OriginalName = *u.OriginalName
	}
	if u.ManifestURL != nil {
		p.ManifestURL = *u.ManifestURL
	}
	if u.SegmentType != nil {
		p.SegmentType = *u.SegmentType
	}
}
