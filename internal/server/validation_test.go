package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a.txt", "a.txt"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{`dir\file.bin`, "dir_file.bin"},
		{"nul\x00byte", "nulbyte"},
		{"line\nbreak.txt", "linebreak.txt"},
		{"  .hidden. ", "hidden"},
		{"", "unnamed"},
		{"...", "unnamed"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}

	long := strings.Repeat("x", 300) + ".pdf"
	got := SanitizeFilename(long)
	require.Len(t, got, 255)
	require.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestCreateRequestNormalize(t *testing.T) {
	name, ct, err := createRequest{Filename: "a.txt", ContentType: "Text/Plain; charset=UTF-8"}.normalize()
	require.NoError(t, err)
	require.Equal(t, "a.txt", name)
	require.Equal(t, "text/plain; charset=UTF-8", ct)

	bad := []createRequest{
		{Filename: "", ContentType: "text/plain"},
		{Filename: "a.txt", ContentType: ""},
		{Filename: "a.txt", ContentType: "not a media type"},
		{Filename: "a.txt", ContentType: "nope"},
		{Filename: "a.txt", ContentType: "text/"},
		{Filename: "a.txt", ContentType: "/plain"},
		{Filename: strings.Repeat("y", 2000), ContentType: "text/plain"},
	}
	for _, r := range bad {
		_, _, err := r.normalize()
		require.Error(t, err, "%+v", r)
	}
}
