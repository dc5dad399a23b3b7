package cgroups

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/vpn-linux/split-tunnel/internal/log"
)

func init() {
	log.DisableLogs()
}

// fakeChildLister returns children from a static tree.
type fakeChildLister struct {
	tree map[int][]int
}

func (f *fakeChildLister) ChildrenOf(parent int) []int {
	return f.tree[parent]
}

// recordingSteering returns a Steering that records writes instead of
// touching the filesystem.
func recordingSteering(tree map[int][]int) (*Steering, *[]int) {
	var placed []int
	s := NewSteering(&fakeChildLister{tree: tree})
	s.write = func(pid int, memberFile string) {
		placed = append(placed, pid)
	}
	return s, &placed
}

func TestPlace_Transitive(t *testing.T) {
	// 100 -> 101, 102; 101 -> 103 (descendant of a descendant)
	s, placed := recordingSteering(map[int][]int{
		100: {101, 102},
		101: {103},
	})

	s.Place(100, "members")

	got := append([]int{}, *placed...)
	sort.Ints(got)
	want := []int{100, 101, 102, 103}
	if len(got) != len(want) {
		t.Fatalf("Expected %v placements, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v placements, got %v", want, got)
		}
	}
}

func TestPlace_CyclicParentsTerminate(t *testing.T) {
	// Pid reuse mid-scan can make the child relation look cyclic; the walk
	// must still terminate and place each pid once.
	s, placed := recordingSteering(map[int][]int{
		1: {2},
		2: {1},
	})

	s.Place(1, "members")

	if len(*placed) != 2 {
		t.Errorf("Expected 2 placements, got %v", *placed)
	}
}

func TestRemove_UsesParentFile(t *testing.T) {
	s := NewSteering(&fakeChildLister{})

	var files []string
	s.write = func(pid int, memberFile string) {
		files = append(files, memberFile)
	}

	s.Remove(42, "parent-members")

	if len(files) != 1 || files[0] != "parent-members" {
		t.Errorf("Expected single write to parent-members, got %v", files)
	}
}

func TestWritePid(t *testing.T) {
	dir := t.TempDir()
	memberFile := filepath.Join(dir, "cgroup.procs")
	if err := os.WriteFile(memberFile, nil, 0644); err != nil {
		t.Fatal(err)
	}

	writePid(1234, memberFile)

	content, err := os.ReadFile(memberFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "1234" {
		t.Errorf("Expected bare decimal pid, got %q", string(content))
	}
}

func TestWritePid_MissingFileIsNotFatal(t *testing.T) {
	// Must log and return, not panic or propagate.
	writePid(1, filepath.Join(t.TempDir(), "missing", "cgroup.procs"))
}
