package version

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "1.0.0", want: Version{1, 0, 0}},
		{in: "0.0.0", want: Version{0, 0, 0}},
		{in: "10.20.30", want: Version{10, 20, 30}},
		{in: "01.002.3", want: Version{1, 2, 3}},
		{in: "1.0.", wantErr: true},
		{in: "2.0.", wantErr: true},
		{in: "1.0", wantErr: true},
		{in: "1.0.0.0", wantErr: true},
		{in: "", wantErr: true},
		{in: "a.b.c", wantErr: true},
		{in: "1.-1.0", wantErr: true},
		{in: "+1.0.0", wantErr: true},
		{in: " 1.0.0", wantErr: true},
		{in: "1.0.0-rc1", wantErr: true},
		{in: "99999999999999999999.0.0", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.wantErr {
			require.Error(t, err, "input %q", tt.in)
			assert.True(t, errors.Is(err, ErrInvalidFormat), "input %q: %v", tt.in, err)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		current   string
		candidate string
		want      bool
	}{
		{current: "1.0.0", candidate: "2.0.0", want: true},
		{current: "2.0.0", candidate: "1.9.9", want: false},
		{current: "1.0.0", candidate: "1.0.0", want: false},
		{current: "1.0.0", candidate: "0.0.0", want: false},
		{current: "1.2.3", candidate: "1.2.4", want: true},
		{current: "1.2.3", candidate: "1.3.0", want: true},
		{current: "1.9.0", candidate: "1.10.0", want: true},
		{current: "1.2.3", candidate: "1.2.2", want: false},
	}

	for _, tt := range tests {
		got, err := IsNewer(tt.current, tt.candidate)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "IsNewer(%q, %q)", tt.current, tt.candidate)
	}
}

func TestIsNewerRejectsMalformed(t *testing.T) {
	_, err := IsNewer("1.0.0", "1.0.")
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = IsNewer("garbage", "1.0.0")
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestInitialIsValid(t *testing.T) {
	assert.True(t, Valid(Initial))
}

func drawVersion(t *rapid.T, label string) Version {
	return Version{
		Major: rapid.Uint64Range(0, 1<<32).Draw(t, label+".major"),
		Minor: rapid.Uint64Range(0, 1<<32).Draw(t, label+".minor"),
		Patch: rapid.Uint64Range(0, 1<<32).Draw(t, label+".patch"),
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := drawVersion(t, "v")
		got, err := Parse(v.String())
		if err != nil {
			t.Fatalf("parse %q: %v", v.String(), err)
		}
		if got != v {
			t.Fatalf("round trip: got %+v, want %+v", got, v)
		}
	})
}

func TestIsNewerIsStrict(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := drawVersion(t, "v").String()
		newer, err := IsNewer(v, v)
		if err != nil {
			t.Fatalf("is newer: %v", err)
		}
		if newer {
			t.Fatalf("%s must not be newer than itself", v)
		}
	})
}

func TestIsNewerMatchesTupleOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawVersion(t, "a")
		b := drawVersion(t, "b")

		want := b.Major > a.Major ||
			(b.Major == a.Major && b.Minor > a.Minor) ||
			(b.Major == a.Major && b.Minor == a.Minor && b.Patch > a.Patch)

		got, err := IsNewer(a.String(), b.String())
		if err != nil {
			t.Fatalf("is newer: %v", err)
		}
		if got != want {
			t.Fatalf("IsNewer(%s, %s) = %v, want %v", a, b, got, want)
		}
		if newer, _ := IsNewer(b.String(), a.String()); got && newer {
			t.Fatalf("ordering is not antisymmetric for %s and %s", a, b)
		}
	})
}
