package taskrun

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/wdlcore/pkg/ast"
	"github.com/lemonberrylabs/wdlcore/pkg/stdlib"
	"github.com/lemonberrylabs/wdlcore/pkg/wdltype"
)

func TestStripCommonIndent(t *testing.T) {
	in := "\n    echo one\n      echo two\n    echo three\n  "
	want := "echo one\n  echo two\necho three"
	assert.Equal(t, want, StripCommonIndent(in))
}

func TestStripCommonIndentBlankLinesIgnored(t *testing.T) {
	in := "    a\n\n    b"
	assert.Equal(t, "a\n\nb", StripCommonIndent(in))

	assert.Equal(t, "", StripCommonIndent("   \n  \n"))
	assert.Equal(t, "x", StripCommonIndent("x"))
}

func TestProvisionRunDirFirstAttempt(t *testing.T) {
	host := t.TempDir()
	rd, err := ProvisionRunDir(host, 1)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(host, "work"), rd.WorkDir)
	assert.Equal(t, filepath.Join(host, "stdout.txt"), rd.StdoutPath)
	assert.Equal(t, filepath.Join(host, "stderr.txt"), rd.StderrPath)
	assert.DirExists(t, rd.WorkDir)
	assert.FileExists(t, rd.StdoutPath)
	assert.FileExists(t, rd.StderrPath)
}

func TestProvisionRunDirRetrySuffixes(t *testing.T) {
	host := t.TempDir()
	_, err := ProvisionRunDir(host, 1)
	require.NoError(t, err)
	rd, err := ProvisionRunDir(host, 2)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(host, "work2"), rd.WorkDir)
	assert.Equal(t, filepath.Join(host, "stdout2.txt"), rd.StdoutPath)
	assert.Equal(t, filepath.Join(host, "stderr2.txt"), rd.StderrPath)
	// First attempt's files are left in place.
	assert.DirExists(t, filepath.Join(host, "work"))
}

func TestInputPathMapGroupsByParentDir(t *testing.T) {
	work := t.TempDir()
	m := NewInputPathMap(work)

	cp1 := m.Add("/data/run1/reads.bam")
	cp2 := m.Add("/data/run1/reads.bai")

	// Same parent dir, distinct basenames: same group.
	assert.Equal(t, filepath.Dir(cp1), filepath.Dir(cp2))
	assert.Equal(t, filepath.Join(work, "_miniwdl_inputs", "0", "reads.bam"), cp1)
}

func TestInputPathMapBasenameCollisionGetsFreshGroup(t *testing.T) {
	work := t.TempDir()
	m := NewInputPathMap(work)

	cp1 := m.Add("/data/run1/reads.bam")
	cp2 := m.Add("/data/run2/reads.bam")

	assert.NotEqual(t, cp1, cp2)
	assert.NotEqual(t, filepath.Dir(cp1), filepath.Dir(cp2))
}

func TestInputPathMapIdempotentAndReversible(t *testing.T) {
	work := t.TempDir()
	m := NewInputPathMap(work)

	cp := m.Add("/data/x.txt")
	assert.Equal(t, cp, m.Add("/data/x.txt"))

	back, ok := m.HostPath(cp)
	require.True(t, ok)
	assert.Equal(t, "/data/x.txt", back)

	fwd, ok := m.ContainerPath("/data/x.txt")
	require.True(t, ok)
	assert.Equal(t, cp, fwd)

	_, ok = m.HostPath(filepath.Join(work, "unrelated"))
	assert.False(t, ok)
}

func TestInputPathMapMountsAreReadOnly(t *testing.T) {
	m := NewInputPathMap(t.TempDir())
	m.Add("/data/a")
	m.Add("/data/b")

	mounts := m.Mounts()
	require.Len(t, mounts, 2)
	for _, mt := range mounts {
		assert.Equal(t, MountReadOnly, mt.Kind)
	}
}

func TestResourceSchedulerAcquireRelease(t *testing.T) {
	s := NewResourceScheduler(4, 1<<30)
	term := NewTerminationFlag()

	require.True(t, s.Acquire(2, 1<<20, term))
	usedCPU, usedMem, _, _ := s.Usage()
	assert.Equal(t, 2, usedCPU)
	assert.Equal(t, int64(1<<20), usedMem)

	s.Release(2, 1<<20)
	usedCPU, usedMem, _, _ = s.Usage()
	assert.Equal(t, 0, usedCPU)
	assert.Equal(t, int64(0), usedMem)
}

func TestResourceSchedulerBlocksUntilCapacityFrees(t *testing.T) {
	s := NewResourceScheduler(2, 1<<30)
	term := NewTerminationFlag()

	require.True(t, s.Acquire(2, 0, term))

	acquired := make(chan bool, 1)
	go func() {
		acquired <- s.Acquire(1, 0, term)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while the pool is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	s.Release(2, 0)
	select {
	case ok := <-acquired:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire never unblocked after release")
	}
	s.Release(1, 0)
}

func TestResourceSchedulerTerminationAbortsWait(t *testing.T) {
	s := NewResourceScheduler(1, 1<<30)
	term := NewTerminationFlag()

	require.True(t, s.Acquire(1, 0, term))

	done := make(chan bool, 1)
	go func() {
		done <- s.Acquire(1, 0, term)
	}()
	term.Signal()

	select {
	case ok := <-done:
		assert.False(t, ok, "terminated wait must report failure, not a grant")
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not observe the termination flag")
	}
}

func TestTerminationFlag(t *testing.T) {
	f := NewTerminationFlag()
	assert.False(t, f.IsSet())

	select {
	case <-f.Done():
		t.Fatal("Done() should not be closed before Signal")
	default:
	}

	f.Signal()
	f.Signal() // idempotent
	assert.True(t, f.IsSet())
	select {
	case <-f.Done():
	default:
		t.Fatal("Done() should be closed after Signal")
	}
}

func TestImagePullLockSerializesPerImage(t *testing.T) {
	p := NewImagePullLock()

	release := p.Lock("ubuntu:22.04")
	otherDone := make(chan struct{})
	go func() {
		r := p.Lock("ubuntu:22.04")
		r()
		close(otherDone)
	}()

	select {
	case <-otherDone:
		t.Fatal("second pull of the same image should wait for the first")
	case <-time.After(50 * time.Millisecond):
	}

	// A different image is not serialized behind it.
	r2 := p.Lock("alpine:3.20")
	r2()

	release()
	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second pull never proceeded after release")
	}
}

func TestImagePullLockConcurrentDistinctImages(t *testing.T) {
	p := NewImagePullLock()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			release := p.Lock(string(rune('a' + n)))
			release()
		}(i)
	}
	wg.Wait()
}

func TestEvalRuntimeNormalization(t *testing.T) {
	task := &ast.Task{
		Name: "t",
		Runtime: map[string]ast.Expr{
			"memory":      &ast.StringExpr{Parts: []ast.StringPart{{Literal: "4 GB"}}},
			"cpu":         &ast.IntLit{Value: 2},
			"docker":      &ast.StringExpr{Parts: []ast.StringPart{{Literal: "ubuntu:22.04"}}},
			"maxRetries":  &ast.IntLit{Value: 1},
			"returnCodes": &ast.IntLit{Value: 2},
		},
		RuntimeOrder: []string{"memory", "cpu", "docker", "maxRetries", "returnCodes"},
	}
	std := stdlib.NewInputStdLib(stdlib.NewContext(t.TempDir(), []string{}))

	rv, err := EvalRuntime(task, nil, std)
	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000_000), rv.MemoryBytes)
	assert.Equal(t, 2, rv.CPU)
	assert.Equal(t, "ubuntu:22.04", rv.Docker)
	assert.Equal(t, 1, rv.MaxRetries)
	assert.True(t, rv.OK(2))
	assert.False(t, rv.OK(0))
}

func TestEvalRuntimeReturnCodesStar(t *testing.T) {
	task := &ast.Task{
		Name: "t",
		Runtime: map[string]ast.Expr{
			"returnCodes": &ast.StringExpr{Parts: []ast.StringPart{{Literal: "*"}}},
		},
		RuntimeOrder: []string{"returnCodes"},
	}
	std := stdlib.NewInputStdLib(stdlib.NewContext(t.TempDir(), []string{}))

	rv, err := EvalRuntime(task, nil, std)
	require.NoError(t, err)
	assert.True(t, rv.OK(0))
	assert.True(t, rv.OK(137))
}

func TestRuntimeValuesDefaultAcceptsOnlyZero(t *testing.T) {
	rv := RuntimeValues{}
	assert.True(t, rv.OK(0))
	assert.False(t, rv.OK(1))
}

func TestCheckContainment(t *testing.T) {
	host := t.TempDir()
	inside := filepath.Join(host, "work", "out.txt")
	require.NoError(t, checkContainment(inside, host))

	err := checkContainment("/etc/passwd", host)
	assert.Error(t, err)

	err = checkContainment(filepath.Join(host, "..", "escape"), host)
	assert.Error(t, err)
}

func TestWdltypeMemoryHelperWiredIntoRuntime(t *testing.T) {
	// EvalRuntime shares the unit table with wdltype.ParseMemoryString.
	b, err := wdltype.ParseMemoryString("1 GiB")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), b)
}
