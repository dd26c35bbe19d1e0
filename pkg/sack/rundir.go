package sack

import (
	"fmt"
	"os"
	"syscall"
)

// DefaultRunDir is where the socket is created absent an override.
const DefaultRunDir = "/run/slurm"

// DefaultSocketName is the socket node's filename inside the run dir.
const DefaultSocketName = "sack.socket"

// prepareRunDir implements the directory-bootstrap rules:
//  1. /run must exist and be a directory.
//  2. runDir must exist; create it 0755 owned by privilegedUID if
//     missing. If it exists, owned by root but privilegedUID differs,
//     warn and continue. If owned by anyone else, fail.
//  3. Remove any stale socket file at runDir/socketName (ENOENT is ok).
func prepareRunDir(runDir, socketName string, privilegedUID uint32) (string, error) {
	runParent := parentDir(runDir)
	fi, err := os.Stat(runParent)
	if err != nil {
		return "", fmt.Errorf("sack: %s: %w", runParent, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("sack: %s is not a directory", runParent)
	}

	info, err := os.Stat(runDir)
	switch {
	case os.IsNotExist(err):
		if err := os.Mkdir(runDir, 0o755); err != nil {
			return "", fmt.Errorf("sack: create %s: %w", runDir, err)
		}
		if err := os.Chown(runDir, int(privilegedUID), -1); err != nil {
			return "", fmt.Errorf("sack: chown %s: %w", runDir, err)
		}
	case err != nil:
		return "", fmt.Errorf("sack: stat %s: %w", runDir, err)
	default:
		owner, gerr := statUID(info)
		if gerr != nil {
			return "", gerr
		}
		switch {
		case owner == 0 && privilegedUID != 0:
			logWarnRunDirOwner(runDir, privilegedUID)
		case owner != privilegedUID && owner != 0:
			return "", fmt.Errorf("sack: %s owned by uid %d, expected %d", runDir, owner, privilegedUID)
		}
	}

	sockPath := runDir + "/" + socketName
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("sack: remove stale socket %s: %w", sockPath, err)
	}

	return sockPath, nil
}

func parentDir(dir string) string {
	i := len(dir) - 1
	for i > 0 && dir[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return dir[:i]
}

func statUID(info os.FileInfo) (uint32, error) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("sack: cannot read owner of %s", info.Name())
	}
	return sys.Uid, nil
}
