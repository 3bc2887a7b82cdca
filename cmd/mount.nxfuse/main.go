/*
mount.nxfuse - FUSE mount helper

This program is a helper for the mount/fstab mechanism. It is normally
located in /sbin or another directory searched by mount(8) for
filesystem helpers, and is not intended to be invoked by end users.

Usage:

	mount.nxfuse <archive.nx> <mountpoint> [-o key[=value],...]

For running the filesystem as another (e.g. unprivileged) user:

	mount.nxfuse <archive.nx> <mountpoint> -o setuid=USER[,...]

Example (fstab entry):

	/data/game.nx  /mnt/nx  nxfuse  allow_other,webaddr=:8000  0  0

Recognized options map onto nxfuse flags: allow_other, webaddr=ADDR,
bitmap_format=png|bmp, cache_cap=N, cache_ttl=DURATION, verbose.
Standard fstab noise options (rw, ro, noauto, nofail, _netdev, ...)
are accepted and ignored.
*/
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"syscall"
	"time"

	"al.essio.dev/pkg/shellescape"
)

const mountTimeout = 30 * time.Second

// ignoredOptions are fstab bookkeeping options with no nxfuse meaning.
var ignoredOptions = map[string]bool{
	"rw": true, "ro": true, "auto": true, "noauto": true,
	"user": true, "nouser": true, "users": true, "nofail": true,
	"_netdev": true, "dev": true, "nodev": true, "suid": true,
	"nosuid": true, "exec": true, "noexec": true, "defaults": true,
}

type mountHelper struct {
	source     string
	mountpoint string
	setuid     string
	flags      []string
}

func main() {
	mh, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mount.nxfuse: %v\n", err)
		os.Exit(1)
	}

	if err := mh.execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mount.nxfuse: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (*mountHelper, error) {
	var positional []string
	var optString string

	for i := 0; i < len(args); i++ {
		if args[i] == "-o" {
			i++
			if i >= len(args) {
				return nil, errors.New("-o requires an argument")
			}
			optString = args[i]

			continue
		}
		positional = append(positional, args[i])
	}

	if len(positional) != 2 { //nolint:mnd
		return nil, errors.New("usage: mount.nxfuse <archive.nx> <mountpoint> [-o options]")
	}

	mh := &mountHelper{source: positional[0], mountpoint: positional[1]}

	for _, opt := range strings.Split(optString, ",") {
		if opt == "" || ignoredOptions[opt] {
			continue
		}

		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "setuid":
			mh.setuid = value
		case "allow_other":
			mh.flags = append(mh.flags, "--allow-other")
		case "verbose":
			mh.flags = append(mh.flags, "--verbose")
		case "webaddr":
			mh.flags = append(mh.flags, "--webaddr", value)
		case "bitmap_format":
			mh.flags = append(mh.flags, "--bitmap-format", value)
		case "cache_cap":
			mh.flags = append(mh.flags, "--cache-cap", value)
		case "cache_ttl":
			mh.flags = append(mh.flags, "--cache-ttl", value)
		default:
			return nil, fmt.Errorf("unknown option %q", opt) //nolint:err113
		}
	}

	return mh, nil
}

func (mh *mountHelper) command() []string {
	return append([]string{"nxfuse", mh.source, mh.mountpoint}, mh.flags...)
}

// execute starts the filesystem process detached from the helper and
// waits until the mountpoint shows up in the mount table.
func (mh *mountHelper) execute() error {
	cmdArgs := mh.command()
	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

	spa := &syscall.SysProcAttr{Setsid: true}
	if mh.setuid != "" {
		uid, gid, err := resolveUser(mh.setuid)
		if err == nil {
			spa.Credential = &syscall.Credential{Uid: uid, Gid: gid}
		} else {
			// No direct credential switch possible, fall back to su
			// with a fully shell-escaped command line.
			quoted := make([]string, len(cmdArgs))
			for i, arg := range cmdArgs {
				quoted[i] = shellescape.Quote(arg)
			}
			inner := strings.Join(quoted, " ")
			outer := fmt.Sprintf("su - %s -c %s", shellescape.Quote(mh.setuid), shellescape.Quote(inner))
			cmd = exec.Command("/bin/sh", "-c", outer)
		}
	}
	cmd.SysProcAttr = spa

	devnull, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open /dev/null: %w", err)
	}
	defer devnull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("process error: %w", err)
	}
	_ = cmd.Process.Release()

	if err := mh.waitForMount(); err != nil {
		return fmt.Errorf("mount error: %w", err)
	}

	return nil
}

func (mh *mountHelper) waitForMount() error {
	ticker := time.NewTicker(200 * time.Millisecond) //nolint:mnd
	defer ticker.Stop()

	deadline := time.After(mountTimeout)
	for {
		select {
		case <-ticker.C:
			if mounted, _ := mh.inMountTable(); mounted {
				return nil
			}

		case <-deadline:
			if mounted, _ := mh.inMountTable(); mounted {
				return nil
			}

			return errors.New("timed out: mountpoint not found")
		}
	}
}

func (mh *mountHelper) inMountTable() (bool, error) {
	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return false, fmt.Errorf("cannot open /proc/self/mountinfo: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), " "+mh.mountpoint+" ") {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("error reading /proc/self/mountinfo: %w", err)
	}

	return false, nil
}

func resolveUser(name string) (uint32, uint32, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve user: %w", err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse uid: %w", err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse gid: %w", err)
	}

	return uint32(uid), uint32(gid), nil
}
