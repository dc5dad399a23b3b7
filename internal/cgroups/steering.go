// Package cgroups moves processes into and out of the traffic-steering
// control groups.
//
// A steering cgroup is used purely as a classification tag: the firewall
// marks packets originating from its members and policy routing sends them
// out the physical uplink or the tunnel. Membership ends naturally when a
// process exits, so removal only matters while the process is alive.
package cgroups

import (
	"os"
	"strconv"

	"github.com/vpn-linux/split-tunnel/internal/log"
)

// ChildLister lists the direct children of a process.
// *proc.Scanner satisfies this.
type ChildLister interface {
	ChildrenOf(parent int) []int
}

// Steering writes pids into cgroup membership files, transitively over each
// process's current descendants.
type Steering struct {
	procs ChildLister
	write func(pid int, memberFile string)
}

// NewSteering returns a Steering using procs for descendant discovery.
func NewSteering(procs ChildLister) *Steering {
	return &Steering{procs: procs, write: writePid}
}

// Place writes pid and all of its current descendants into memberFile.
// Failures are logged and skipped; placement is best effort.
func (s *Steering) Place(pid int, memberFile string) {
	s.placeTree(pid, memberFile)
}

// Remove moves pid and all of its current descendants out of a steering
// cgroup by writing them into the parent cgroup's membership file.
func (s *Steering) Remove(pid int, parentMemberFile string) {
	s.placeTree(pid, parentMemberFile)
}

// placeTree walks pid's descendants with an explicit worklist. Children are
// re-scanned after each placement, so processes forked during the walk are
// still picked up; a process that vanishes mid-walk simply has no children.
func (s *Steering) placeTree(pid int, memberFile string) {
	worklist := []int{pid}
	seen := map[int]bool{}

	for len(worklist) > 0 {
		next := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if seen[next] {
			continue
		}
		seen[next] = true

		s.write(next, memberFile)
		worklist = append(worklist, s.procs.ChildrenOf(next)...)
	}
}

// writePid appends the decimal pid to the cgroup membership file. Writing an
// already-member pid is a no-op from the kernel's perspective.
func writePid(pid int, memberFile string) {
	f, err := os.OpenFile(memberFile, os.O_WRONLY, 0)
	if err != nil {
		log.Warnf("Cannot open %s for writing: %v", memberFile, err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		log.Warnf("Could not write pid %d to %s: %v", pid, memberFile, err)
	}
}
