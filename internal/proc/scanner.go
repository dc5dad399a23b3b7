// Package proc provides stateless queries over the live process table.
//
// Every call re-reads procfs: tracked processes are short-lived and any
// cached view would be stale immediately. Lookups on a process that has
// already exited are reported as absence, never as an error.
package proc

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Scanner reads process information from a procfs mount.
type Scanner struct {
	root string
}

// NewScanner returns a Scanner over the given procfs mount point
// (normally "/proc").
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Pids lists all live process ids.
func (s *Scanner) Pids() []int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}

	var pids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// ExePath resolves the executable path of pid via the /proc/<pid>/exe
// symlink. Returns false if the process is gone or the link is unreadable.
func (s *Scanner) ExePath(pid int) (string, bool) {
	path, err := os.Readlink(filepath.Join(s.root, strconv.Itoa(pid), "exe"))
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

// ParentPid resolves the parent pid of pid from the PPid field of
// /proc/<pid>/status. Returns false if the file is gone or malformed.
func (s *Scanner) ParentPid(pid int) (int, bool) {
	f, err := os.Open(filepath.Join(s.root, strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "PPid:") {
			continue
		}
		ppid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PPid:")))
		if err != nil {
			return 0, false
		}
		return ppid, true
	}
	return 0, false
}

// ChildrenOf lists the direct children of parent. A pid whose parent cannot
// be resolved mid-scan is treated as not a child.
func (s *Scanner) ChildrenOf(parent int) []int {
	var children []int
	for _, pid := range s.Pids() {
		if ppid, ok := s.ParentPid(pid); ok && ppid == parent {
			children = append(children, pid)
		}
	}
	return children
}

// PidsForPath lists all live pids whose executable path equals path exactly.
func (s *Scanner) PidsForPath(path string) []int {
	var pids []int
	for _, pid := range s.Pids() {
		if exe, ok := s.ExePath(pid); ok && exe == path {
			pids = append(pids, pid)
		}
	}
	return pids
}
