package wasi

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// Flag and rights bits from the preview1 witx. Rights are advisory here:
// path_open honors fd_read/fd_write to pick the host open mode, and
// fd_fdstat_get reports everything as granted.
const (
	oflagCreat     = 1 << 0
	oflagDirectory = 1 << 1
	oflagExcl      = 1 << 2
	oflagTrunc     = 1 << 3

	fdflagAppend = 1 << 0

	rightFdRead  = uint64(1) << 1
	rightFdWrite = uint64(1) << 6

	// Bits 0..28 are the rights preview1 defines.
	rightsAll = uint64(1)<<29 - 1

	lookupFollow = 1 << 0

	fstflagAtim    = 1 << 0
	fstflagAtimNow = 1 << 1
	fstflagMtim    = 1 << 2
	fstflagMtimNow = 1 << 3

	direntSize   = 24
	fdstatSize   = 24
	filestatSize = 64
	prestatSize  = 8
)

func readGuestPath(mem api.Memory, ptr, length uint32) (string, Errno) {
	b, ok := mem.Read(ptr, length)
	if !ok {
		return "", ErrnoFault
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return "", ErrnoInval
	}
	return string(b), ErrnoSuccess
}

// readIovec returns the guest buffer one iovec describes. The slice views
// module memory directly, so reads scatter and writes gather without a
// copy.
func readIovec(mem api.Memory, ptr uint32) ([]byte, Errno) {
	base, ok1 := mem.ReadUint32Le(ptr)
	length, ok2 := mem.ReadUint32Le(ptr + 4)
	if !ok1 || !ok2 {
		return nil, ErrnoFault
	}
	buf, ok := mem.Read(base, length)
	if !ok {
		return nil, ErrnoFault
	}
	return buf, ErrnoSuccess
}

func filetypeOf(info fs.FileInfo) byte {
	mode := info.Mode()
	switch {
	case mode.IsDir():
		return filetypeDirectory
	case mode&fs.ModeSymlink != 0:
		return filetypeSymlink
	case mode.IsRegular():
		return filetypeRegular
	case mode&fs.ModeCharDevice != 0:
		return filetypeCharacter
	}
	return filetypeUnknown
}

// writeFilestat fills a preview1 filestat record. Inode and device are
// reported as zero; access and change times mirror the modification time,
// which is the only one Go exposes portably.
func writeFilestat(mem api.Memory, ptr uint32, filetype byte, size, mtimNs int64) Errno {
	buf := make([]byte, filestatSize)
	buf[16] = filetype
	binary.LittleEndian.PutUint64(buf[24:], 1) // nlink
	binary.LittleEndian.PutUint64(buf[32:], uint64(size))
	binary.LittleEndian.PutUint64(buf[40:], uint64(mtimNs))
	binary.LittleEndian.PutUint64(buf[48:], uint64(mtimNs))
	binary.LittleEndian.PutUint64(buf[56:], uint64(mtimNs))
	if !mem.Write(ptr, buf) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func wasiFdWrite(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	fd, iovs, iovsLen, nwrittenPtr := uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3])
	entry, ok := e.fds.get(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	var w io.Writer
	switch {
	case entry.writer != nil:
		w = entry.writer
	case entry.file != nil && !entry.dir:
		w = entry.file
	default:
		stack[0] = uint64(ErrnoBadf)
		return
	}
	mem := mod.Memory()
	var written uint32
	for i := uint32(0); i < iovsLen; i++ {
		buf, errno := readIovec(mem, iovs+8*i)
		if errno != ErrnoSuccess {
			stack[0] = uint64(errno)
			return
		}
		n, err := w.Write(buf)
		written += uint32(n)
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
	}
	if !mem.WriteUint32Le(nwrittenPtr, written) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdRead(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	fd, iovs, iovsLen, nreadPtr := uint32(stack[0]), uint32(stack[1]), uint32(stack[2]), uint32(stack[3])
	entry, ok := e.fds.get(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	var r io.Reader
	switch {
	case entry.reader != nil:
		r = entry.reader
	case entry.file != nil && !entry.dir:
		r = entry.file
	default:
		stack[0] = uint64(ErrnoBadf)
		return
	}
	mem := mod.Memory()
	var nread uint32
	for i := uint32(0); i < iovsLen; i++ {
		buf, errno := readIovec(mem, iovs+8*i)
		if errno != ErrnoSuccess {
			stack[0] = uint64(errno)
			return
		}
		if len(buf) == 0 {
			continue
		}
		n, err := r.Read(buf)
		nread += uint32(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
		if n < len(buf) {
			break
		}
	}
	if !mem.WriteUint32Le(nreadPtr, nread) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdPread(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	fd, iovs, iovsLen := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
	offset, nreadPtr := int64(stack[3]), uint32(stack[4])
	entry, ok := e.fds.get(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.file == nil || entry.dir {
		stack[0] = uint64(ErrnoSpipe)
		return
	}
	mem := mod.Memory()
	var nread uint32
	for i := uint32(0); i < iovsLen; i++ {
		buf, errno := readIovec(mem, iovs+8*i)
		if errno != ErrnoSuccess {
			stack[0] = uint64(errno)
			return
		}
		if len(buf) == 0 {
			continue
		}
		n, err := entry.file.ReadAt(buf, offset)
		nread += uint32(n)
		offset += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
	}
	if !mem.WriteUint32Le(nreadPtr, nread) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdPwrite(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	fd, iovs, iovsLen := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
	offset, nwrittenPtr := int64(stack[3]), uint32(stack[4])
	entry, ok := e.fds.get(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.file == nil || entry.dir {
		stack[0] = uint64(ErrnoSpipe)
		return
	}
	mem := mod.Memory()
	var written uint32
	for i := uint32(0); i < iovsLen; i++ {
		buf, errno := readIovec(mem, iovs+8*i)
		if errno != ErrnoSuccess {
			stack[0] = uint64(errno)
			return
		}
		n, err := entry.file.WriteAt(buf, offset)
		written += uint32(n)
		offset += int64(n)
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
	}
	if !mem.WriteUint32Le(nwrittenPtr, written) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdClose(e *Env, _ context.Context, _ api.Module, stack []uint64) {
	entry, ok := e.fds.remove(uint32(stack[0]))
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.file != nil {
		if err := entry.file.Close(); err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdSeek(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	fd, offset := uint32(stack[0]), int64(stack[1])
	whence, resultPtr := uint32(stack[2]), uint32(stack[3])
	entry, ok := e.fds.get(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.dir {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.file == nil {
		stack[0] = uint64(ErrnoSpipe)
		return
	}
	var w int
	switch whence {
	case 0:
		w = io.SeekStart
	case 1:
		w = io.SeekCurrent
	case 2:
		w = io.SeekEnd
	default:
		stack[0] = uint64(ErrnoInval)
		return
	}
	off, err := entry.file.Seek(offset, w)
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	if !mod.Memory().WriteUint64Le(resultPtr, uint64(off)) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdTell(e *Env, ctx context.Context, mod api.Module, stack []uint64) {
	// tell(fd) is seek(fd, 0, cur).
	seekStack := []uint64{stack[0], 0, 1, stack[1]}
	wasiFdSeek(e, ctx, mod, seekStack)
	stack[0] = seekStack[0]
}

// wasiFdSync backs both fd_sync and fd_datasync. Flushing data without
// metadata is not portable, so both sync everything.
func wasiFdSync(e *Env, _ context.Context, _ api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.file != nil {
		if err := entry.file.Sync(); err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdAdvise(e *Env, _ context.Context, _ api.Module, stack []uint64) {
	if _, ok := e.fds.get(uint32(stack[0])); !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	// Access-pattern advice has no host equivalent worth acting on.
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdRenumber(e *Env, _ context.Context, _ api.Module, stack []uint64) {
	stack[0] = uint64(e.fds.renumber(uint32(stack[0]), uint32(stack[1])))
}

func wasiFdFdstatGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	buf := make([]byte, fdstatSize)
	buf[0] = entry.filetype()
	binary.LittleEndian.PutUint64(buf[8:], rightsAll)
	binary.LittleEndian.PutUint64(buf[16:], rightsAll)
	if !mod.Memory().Write(uint32(stack[1]), buf) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdPrestatGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok || !entry.preopen {
		// Guests walk descriptors until the first EBADF.
		stack[0] = uint64(ErrnoBadf)
		return
	}
	buf := make([]byte, prestatSize)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(entry.guestPath)))
	if !mod.Memory().Write(uint32(stack[1]), buf) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdPrestatDirName(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok || !entry.preopen {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	name := []byte(entry.guestPath)
	if uint32(len(name)) > uint32(stack[2]) {
		stack[0] = uint64(ErrnoNametoolong)
		return
	}
	if !mod.Memory().Write(uint32(stack[1]), name) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiFdFilestatGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	ptr := uint32(stack[1])
	mem := mod.Memory()
	switch {
	case entry.file != nil && !entry.dir:
		info, err := entry.file.Stat()
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
		stack[0] = uint64(writeFilestat(mem, ptr, filetypeOf(info), info.Size(), info.ModTime().UnixNano()))
	case entry.dir:
		info, err := os.Stat(entry.hostPath)
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
		stack[0] = uint64(writeFilestat(mem, ptr, filetypeDirectory, info.Size(), info.ModTime().UnixNano()))
	default:
		stack[0] = uint64(writeFilestat(mem, ptr, filetypeCharacter, 0, 0))
	}
}

func wasiFdFilestatSetSize(e *Env, _ context.Context, _ api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.file == nil || entry.dir {
		stack[0] = uint64(ErrnoInval)
		return
	}
	if err := entry.file.Truncate(int64(stack[1])); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

// applyTimes implements the fstflags contract shared by the two
// *_set_times calls. Fields left unset keep their current value.
func applyTimes(hostPath string, atimNs, mtimNs int64, flags uint32) Errno {
	if flags&(fstflagAtim|fstflagAtimNow) == fstflagAtim|fstflagAtimNow ||
		flags&(fstflagMtim|fstflagMtimNow) == fstflagMtim|fstflagMtimNow {
		return ErrnoInval
	}
	info, err := os.Stat(hostPath)
	if err != nil {
		return errnoFor(err)
	}
	atime, mtime := info.ModTime(), info.ModTime()
	switch {
	case flags&fstflagAtimNow != 0:
		atime = time.Now()
	case flags&fstflagAtim != 0:
		atime = time.Unix(0, atimNs)
	}
	switch {
	case flags&fstflagMtimNow != 0:
		mtime = time.Now()
	case flags&fstflagMtim != 0:
		mtime = time.Unix(0, mtimNs)
	}
	if err := os.Chtimes(hostPath, atime, mtime); err != nil {
		return errnoFor(err)
	}
	return ErrnoSuccess
}

func wasiFdFilestatSetTimes(e *Env, _ context.Context, _ api.Module, stack []uint64) {
	entry, ok := e.fds.get(uint32(stack[0]))
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if entry.hostPath == "" {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	stack[0] = uint64(applyTimes(entry.hostPath, int64(stack[1]), int64(stack[2]), uint32(stack[3])))
}

func wasiFdReaddir(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	fd, bufPtr, bufLen := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])
	cookie, bufusedPtr := stack[3], uint32(stack[4])
	entry, ok := e.fds.get(fd)
	if !ok {
		stack[0] = uint64(ErrnoBadf)
		return
	}
	if !entry.dir {
		stack[0] = uint64(ErrnoNotdir)
		return
	}
	ents, err := os.ReadDir(entry.hostPath)
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	start := int(cookie)
	if cookie > uint64(len(ents)) {
		start = len(ents)
	}

	// Serialize dirents until the buffer is full. A record truncated at the
	// end tells the guest to come back with a bigger buffer; bufused below
	// bufLen means the listing is complete.
	var out []byte
	for i := start; i < len(ents) && uint32(len(out)) < bufLen; i++ {
		name := ents[i].Name()
		rec := make([]byte, direntSize+len(name))
		binary.LittleEndian.PutUint64(rec, uint64(i+1)) // next cookie
		binary.LittleEndian.PutUint32(rec[16:], uint32(len(name)))
		var ft byte
		if info, err := ents[i].Info(); err == nil {
			ft = filetypeOf(info)
		}
		rec[20] = ft
		copy(rec[direntSize:], name)
		out = append(out, rec...)
	}
	if uint32(len(out)) > bufLen {
		out = out[:bufLen]
	}
	mem := mod.Memory()
	if len(out) > 0 && !mem.Write(bufPtr, out) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	if !mem.WriteUint32Le(bufusedPtr, uint32(len(out))) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

// pathArg loads the directory descriptor and guest path common to all
// path_* calls and resolves the host path.
func (e *Env) pathArg(mem api.Memory, fd, ptr, length uint32) (string, Errno) {
	dir, ok := e.fds.get(fd)
	if !ok {
		return "", ErrnoBadf
	}
	guest, errno := readGuestPath(mem, ptr, length)
	if errno != ErrnoSuccess {
		return "", errno
	}
	return resolvePath(dir, guest)
}

func wasiPathCreateDirectory(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	host, errno := e.pathArg(mod.Memory(), uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	if err := os.Mkdir(host, 0o755); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathRemoveDirectory(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	host, errno := e.pathArg(mod.Memory(), uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	info, err := os.Lstat(host)
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	if !info.IsDir() {
		stack[0] = uint64(ErrnoNotdir)
		return
	}
	if err := os.Remove(host); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathUnlinkFile(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	host, errno := e.pathArg(mod.Memory(), uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	info, err := os.Lstat(host)
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	if info.IsDir() {
		stack[0] = uint64(ErrnoIsdir)
		return
	}
	if err := os.Remove(host); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathRename(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	oldHost, errno := e.pathArg(mem, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	newHost, errno := e.pathArg(mem, uint32(stack[3]), uint32(stack[4]), uint32(stack[5]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	if err := os.Rename(oldHost, newHost); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathLink(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	// stack[1] carries lookup flags; hard links never follow the final
	// component, so they are ignored.
	oldHost, errno := e.pathArg(mem, uint32(stack[0]), uint32(stack[2]), uint32(stack[3]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	newHost, errno := e.pathArg(mem, uint32(stack[4]), uint32(stack[5]), uint32(stack[6]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	if err := os.Link(oldHost, newHost); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathSymlink(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	// The link target is a raw string, not resolved against any descriptor.
	target, errno := readGuestPath(mem, uint32(stack[0]), uint32(stack[1]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	newHost, errno := e.pathArg(mem, uint32(stack[2]), uint32(stack[3]), uint32(stack[4]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	if err := os.Symlink(target, newHost); err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathReadlink(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	host, errno := e.pathArg(mem, uint32(stack[0]), uint32(stack[1]), uint32(stack[2]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	bufPtr, bufLen, bufusedPtr := uint32(stack[3]), uint32(stack[4]), uint32(stack[5])
	target, err := os.Readlink(host)
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	b := []byte(target)
	if uint32(len(b)) > bufLen {
		b = b[:bufLen] // readlink truncates silently
	}
	if len(b) > 0 && !mem.Write(bufPtr, b) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	if !mem.WriteUint32Le(bufusedPtr, uint32(len(b))) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiPathFilestatGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	flags := uint32(stack[1])
	host, errno := e.pathArg(mem, uint32(stack[0]), uint32(stack[2]), uint32(stack[3]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	var info fs.FileInfo
	var err error
	if flags&lookupFollow != 0 {
		info, err = os.Stat(host)
	} else {
		info, err = os.Lstat(host)
	}
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	stack[0] = uint64(writeFilestat(mem, uint32(stack[4]), filetypeOf(info), info.Size(), info.ModTime().UnixNano()))
}

func wasiPathFilestatSetTimes(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	host, errno := e.pathArg(mod.Memory(), uint32(stack[0]), uint32(stack[2]), uint32(stack[3]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}
	stack[0] = uint64(applyTimes(host, int64(stack[4]), int64(stack[5]), uint32(stack[6])))
}

func wasiPathOpen(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	mem := mod.Memory()
	oflags := uint32(stack[4])
	rightsBase := stack[5]
	fdflags := uint32(stack[7])
	resultPtr := uint32(stack[8])

	host, errno := e.pathArg(mem, uint32(stack[0]), uint32(stack[2]), uint32(stack[3]))
	if errno != ErrnoSuccess {
		stack[0] = uint64(errno)
		return
	}

	if oflags&oflagDirectory != 0 && oflags&oflagCreat == 0 {
		info, err := os.Stat(host)
		if err != nil {
			stack[0] = uint64(errnoFor(err))
			return
		}
		if !info.IsDir() {
			stack[0] = uint64(ErrnoNotdir)
			return
		}
		fd := e.fds.add(&fdEntry{dir: true, hostPath: host})
		if !mem.WriteUint32Le(resultPtr, fd) {
			e.fds.remove(fd)
			stack[0] = uint64(ErrnoFault)
			return
		}
		stack[0] = uint64(ErrnoSuccess)
		return
	}

	mode := os.O_RDONLY
	readable := rightsBase&rightFdRead != 0
	writable := rightsBase&rightFdWrite != 0
	switch {
	case readable && writable:
		mode = os.O_RDWR
	case writable:
		mode = os.O_WRONLY
	}
	if oflags&oflagCreat != 0 {
		mode |= os.O_CREATE
	}
	if oflags&oflagExcl != 0 {
		mode |= os.O_EXCL
	}
	if oflags&oflagTrunc != 0 {
		mode |= os.O_TRUNC
	}
	if fdflags&fdflagAppend != 0 {
		mode |= os.O_APPEND
	}

	f, err := os.OpenFile(host, mode, 0o644)
	if err != nil {
		stack[0] = uint64(errnoFor(err))
		return
	}
	newEntry := &fdEntry{file: f, hostPath: host}
	if info, err := f.Stat(); err == nil && info.IsDir() {
		_ = f.Close()
		newEntry = &fdEntry{dir: true, hostPath: host}
	}
	fd := e.fds.add(newEntry)
	if !mem.WriteUint32Le(resultPtr, fd) {
		if removed, ok := e.fds.remove(fd); ok && removed.file != nil {
			_ = removed.file.Close()
		}
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}
