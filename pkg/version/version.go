// Package version implements the OSGi-style Version and VersionRange types
// named by the specification's utility primitives: an immutable
// (major, minor, micro, qualifier) 4-tuple with total ordering, and a range
// type with the four boundary-inclusion rules.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is an immutable (major, minor, micro, qualifier) tuple. Numeric
// comparison of the first three components is delegated to
// github.com/Masterminds/semver/v3; qualifier comparison is a plain
// lexicographic string compare, matching OSGi R4 Version.compareTo.
type Version struct {
	major, minor, micro uint64
	qualifier            string
}

// Zero is the version 0.0.0.
var Zero = Version{}

// New constructs a Version directly from its components.
func New(major, minor, micro uint64, qualifier string) Version {
	return Version{major: major, minor: minor, micro: micro, qualifier: qualifier}
}

// Parse parses the OSGi dotted form "major[.minor[.micro[.qualifier]]]".
// Unlike semver, the qualifier segment is free-form text, not a
// dash-delimited prerelease tag. The string is split at no more than three
// dots, so everything after the third dot, further dots included, becomes the
// qualifier.
func Parse(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 4)
	var nums [3]uint64
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.ParseUint(parts[i], 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version: invalid numeric segment %q in %q: %w", parts[i], s, err)
		}
		nums[i] = n
	}
	var qualifier string
	if len(parts) == 4 {
		qualifier = parts[3]
	}
	return Version{major: nums[0], minor: nums[1], micro: nums[2], qualifier: qualifier}, nil
}

// MustParse parses s and panics on error; intended for constant literals.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) Major() uint64      { return v.major }
func (v Version) Minor() uint64      { return v.minor }
func (v Version) Micro() uint64      { return v.micro }
func (v Version) Qualifier() string  { return v.qualifier }

// semver returns the *semver.Version backing this Version's numeric triple.
// Construction is infallible because major/minor/micro are already
// non-negative integers.
func (v Version) semver() *semver.Version {
	sv, _ := semver.NewVersion(fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.micro))
	return sv
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other. Numeric segments compare numerically; an absent qualifier sorts
// before any present one; two present qualifiers compare lexicographically.
func (v Version) Compare(other Version) int {
	if c := v.semver().Compare(other.semver()); c != 0 {
		return c
	}
	switch {
	case v.qualifier == other.qualifier:
		return 0
	case v.qualifier == "":
		return -1
	case other.qualifier == "":
		return 1
	case v.qualifier < other.qualifier:
		return -1
	default:
		return 1
	}
}

func (v Version) Less(other Version) bool    { return v.Compare(other) < 0 }
func (v Version) Equal(other Version) bool   { return v.Compare(other) == 0 }
func (v Version) Greater(other Version) bool { return v.Compare(other) > 0 }

// String renders the dotted OSGi form, including the qualifier segment only
// when non-empty.
func (v Version) String() string {
	if v.qualifier == "" {
		return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.micro)
	}
	return fmt.Sprintf("%d.%d.%d.%s", v.major, v.minor, v.micro, v.qualifier)
}
