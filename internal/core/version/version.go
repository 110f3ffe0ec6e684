// Package version parses and compares MAJOR.MINOR.PATCH version strings.
//
// Only plain numeric triples are accepted. Pre-release and build metadata
// suffixes are rejected even though semver allows them.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var ErrInvalidFormat = errors.New("invalid version format")

// Initial is the version assigned to newly registered software.
const Initial = "1.0.0"

type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 when v is lower, equal or greater than o.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

func (v Version) semver() *semver.Version {
	return semver.New(v.Major, v.Minor, v.Patch, "", "")
}

// Parse splits s into exactly three dot separated non-negative integers.
// Leading zeros are tolerated ("01.0.0" is 1.0.0).
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	var nums [3]uint64
	for i, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Valid reports whether s is a well formed version string.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// IsNewer reports whether candidate is strictly greater than current.
// Equal versions are not newer.
func IsNewer(current, candidate string) (bool, error) {
	cur, err := Parse(current)
	if err != nil {
		return false, err
	}
	next, err := Parse(candidate)
	if err != nil {
		return false, err
	}
	return next.semver().GreaterThan(cur.semver()), nil
}
