package wasi

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// WASI filetype values, written into fdstat and filestat structs.
const (
	filetypeUnknown   = 0
	filetypeCharacter = 2
	filetypeDirectory = 3
	filetypeRegular   = 4
	filetypeSymlink   = 7
)

// fdEntry is one open descriptor. Exactly one of reader, writer or file is
// set; directories carry only paths.
type fdEntry struct {
	reader    io.Reader // stdin
	writer    io.Writer // stdout, stderr
	file      *os.File  // regular files, and directories from path_open
	dir       bool
	hostPath  string // set for directories and path_open results
	guestPath string // preopens: the name reported by fd_prestat_dir_name
	preopen   bool
}

func (f *fdEntry) filetype() byte {
	switch {
	case f.dir:
		return filetypeDirectory
	case f.file != nil:
		return filetypeRegular
	case f.reader != nil || f.writer != nil:
		return filetypeCharacter
	}
	return filetypeUnknown
}

// fdTable maps guest descriptors to host state. Descriptors 0..2 are the
// standard streams and 3..N the preopens, matching what guests probe for.
type fdTable struct {
	mu      sync.Mutex
	entries map[uint32]*fdEntry
	next    uint32
}

func newFDTable(stdin io.Reader, stdout, stderr io.Writer) *fdTable {
	return &fdTable{
		entries: map[uint32]*fdEntry{
			0: {reader: stdin},
			1: {writer: stdout},
			2: {writer: stderr},
		},
		next: 3,
	}
}

func (t *fdTable) get(fd uint32) (*fdEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	return e, ok
}

func (t *fdTable) add(e *fdEntry) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.entries[fd] = e
	return fd
}

// renumber atomically moves from onto to, closing whatever to held.
func (t *fdTable) renumber(from, to uint32) Errno {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[from]
	if !ok {
		return ErrnoBadf
	}
	if from == to {
		return ErrnoSuccess
	}
	if old, ok := t.entries[to]; ok && old.file != nil {
		_ = old.file.Close()
	}
	t.entries[to] = e
	delete(t.entries, from)
	return ErrnoSuccess
}

// remove unmaps fd and returns its entry. The caller closes any file.
func (t *fdTable) remove(fd uint32) (*fdEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if ok {
		delete(t.entries, fd)
	}
	return e, ok
}

// closeAll closes every open file. Standard streams are left to their
// owners; preopens hold no open handle.
func (t *fdTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, e := range t.entries {
		if e.file != nil {
			_ = e.file.Close()
		}
		delete(t.entries, fd)
	}
}

// resolvePath maps a guest path relative to a directory descriptor onto the
// host filesystem, refusing to escape the directory's tree. A leading slash
// is treated as relative to the descriptor, which is how sandboxed guests
// address their preopen root.
func resolvePath(dir *fdEntry, guestPath string) (string, Errno) {
	if !dir.dir {
		return "", ErrnoNotdir
	}
	p := path.Clean(guestPath)
	p = strings.TrimPrefix(p, "/")
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", ErrnoNotcapable
	}
	if p == "." || p == "" {
		return dir.hostPath, ErrnoSuccess
	}
	return filepath.Join(dir.hostPath, filepath.FromSlash(p)), ErrnoSuccess
}
