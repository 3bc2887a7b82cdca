package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Expectation: parseArgs should map fstab options onto nxfuse flags and
// skip standard bookkeeping options.
func Test_parseArgs_Success(t *testing.T) {
	t.Parallel()

	mh, err := parseArgs([]string{
		"/data/game.nx", "/mnt/nx",
		"-o", "rw,nofail,allow_other,webaddr=:8000,bitmap_format=bmp,setuid=games",
	})
	require.NoError(t, err)

	require.Equal(t, "/data/game.nx", mh.source)
	require.Equal(t, "/mnt/nx", mh.mountpoint)
	require.Equal(t, "games", mh.setuid)
	require.Equal(t, []string{"--allow-other", "--webaddr", ":8000", "--bitmap-format", "bmp"}, mh.flags)
}

// Expectation: the assembled command should start with the filesystem
// binary, source and mountpoint, followed by the mapped flags.
func Test_mountHelper_command_Success(t *testing.T) {
	t.Parallel()

	mh, err := parseArgs([]string{"src.nx", "/mnt/nx", "-o", "cache_cap=64"})
	require.NoError(t, err)

	require.Equal(t, []string{"nxfuse", "src.nx", "/mnt/nx", "--cache-cap", "64"}, mh.command())
}

// Expectation: unknown options and malformed invocations should fail.
func Test_parseArgs_Failure(t *testing.T) {
	t.Parallel()

	_, err := parseArgs([]string{"src.nx", "/mnt/nx", "-o", "frobnicate=yes"})
	require.Error(t, err)

	_, err = parseArgs([]string{"src.nx"})
	require.Error(t, err)

	_, err = parseArgs([]string{"src.nx", "/mnt/nx", "-o"})
	require.Error(t, err)
}
