package cache

import (
	"fmt"
	"os"
	"syscall"
)

// SharedLock is a held flock(2) shared lock on a file, released by Unlock.
// Holding one across a cache hit's run lifetime is how a concurrent run
// writing new content to that same file is prevented from invalidating the
// cache entry mid-read.
type SharedLock struct {
	f *os.File
}

// LockShared opens path and takes a shared flock, blocking until available.
func LockShared(path string) (*SharedLock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cache: opening %s for lock: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		f.Close()
		return nil, fmt.Errorf("cache: flock %s: %w", path, err)
	}
	if err := verifySameFile(path, f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, err
	}
	return &SharedLock{f: f}, nil
}

// verifySameFile checks that path still names the inode the flock was taken
// on — the file could have been renamed or replaced between the open and
// flock syscalls, in which case the lock protects the wrong file.
func verifySameFile(path string, f *os.File) error {
	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	fdInfo, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	pathSt, ok1 := pathInfo.Sys().(*syscall.Stat_t)
	fdSt, ok2 := fdInfo.Sys().(*syscall.Stat_t)
	if ok1 && ok2 && (pathSt.Dev != fdSt.Dev || pathSt.Ino != fdSt.Ino) {
		return fmt.Errorf("cache: %s changed concurrently while locking", path)
	}
	return nil
}

// TryLockShared is LockShared's non-blocking form, returning ok=false
// instead of waiting when the lock is currently held exclusively.
func TryLockShared(path string) (lock *SharedLock, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: opening %s for lock: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: flock %s: %w", path, err)
	}
	if err := verifySameFile(path, f); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, false, nil
	}
	return &SharedLock{f: f}, true, nil
}

// Unlock releases the lock and closes the underlying file descriptor.
func (l *SharedLock) Unlock() {
	if l == nil || l.f == nil {
		return
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	l.f.Close()
}
