package listing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEntries_Unix(t *testing.T) {
	text := "drwxr-xr-x 2 user group 4096 Jan 01 12:00 bin\n" +
		"-rw-r--r-- 1 user group 1234 Jan 01 12:00 readme.txt\n" +
		"lrwxrwxrwx 1 user group 7 Jan 01 12:00 link -> target\n"

	entries := ParseEntries(text, nil)
	require.Len(t, entries, 3)

	require.Equal(t, "bin", entries[0].Name)
	require.Equal(t, "dir", entries[0].Type)

	require.Equal(t, "readme.txt", entries[1].Name)
	require.Equal(t, "file", entries[1].Type)
	require.EqualValues(t, 1234, entries[1].Size)

	require.Equal(t, "link", entries[2].Name)
	require.Equal(t, "target", entries[2].Target)
	require.Equal(t, "link", entries[2].Type)
}

func TestParseEntries_DOS(t *testing.T) {
	text := "12-14-23  12:22PM       <DIR>          dirname\n" +
		"12-14-23  12:22PM             1037794 file.pdf\n"

	entries := ParseEntries(text, nil)
	require.Len(t, entries, 2)
	require.Equal(t, "dir", entries[0].Type)
	require.Equal(t, "dirname", entries[0].Name)
	require.Equal(t, "file.pdf", entries[1].Name)
	require.EqualValues(t, 1037794, entries[1].Size)
}

func TestParseEntries_EPLF(t *testing.T) {
	text := "+i8388621.48594,m825718503,r,s280,\tfile1\n" +
		"+i8388621.50690,m824255907,/,\tdir1\n"

	entries := ParseEntries(text, nil)
	require.Len(t, entries, 2)
	require.Equal(t, "file1", entries[0].Name)
	require.EqualValues(t, 280, entries[0].Size)
	require.Equal(t, "dir1", entries[1].Name)
	require.Equal(t, "dir", entries[1].Type)
}

func TestParseEntries_UnrecognizedLineKeptAsUnknown(t *testing.T) {
	entries := ParseEntries("total 12\n", nil)
	require.Len(t, entries, 1)
	require.Equal(t, "unknown", entries[0].Type)
}

func TestParseEntries_BlankLinesSkipped(t *testing.T) {
	entries := ParseEntries("\n\r\n  \n", nil)
	require.Empty(t, entries)
}
