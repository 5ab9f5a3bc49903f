package wasi

import (
	"context"
	"crypto/rand"
	goruntime "runtime"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/0x7CFE/wasmer/types"
)

// hostFunc is one entry of the wasi_snapshot_preview1 function table.
type hostFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	sig     *types.FuncType // derived once in hostFuncIndex
	fn      func(e *Env, ctx context.Context, mod api.Module, stack []uint64)
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func errnoResult(params ...api.ValueType) ([]api.ValueType, []api.ValueType) {
	return params, []api.ValueType{i32}
}

func fnEntry(name string, fn func(*Env, context.Context, api.Module, []uint64), params ...api.ValueType) hostFunc {
	p, r := errnoResult(params...)
	return hostFunc{name: name, params: p, results: r, fn: fn}
}

func stubEntry(name string, params ...api.ValueType) hostFunc {
	return fnEntry(name, func(_ *Env, _ context.Context, _ api.Module, stack []uint64) {
		stack[0] = uint64(ErrnoNosys)
	}, params...)
}

// hostFuncs is the complete preview1 surface. Signatures follow the WASI
// snapshot; everything returns an errno except proc_exit.
var hostFuncs = []hostFunc{
	fnEntry("args_get", wasiArgsGet, i32, i32),
	fnEntry("args_sizes_get", wasiArgsSizesGet, i32, i32),
	fnEntry("environ_get", wasiEnvironGet, i32, i32),
	fnEntry("environ_sizes_get", wasiEnvironSizesGet, i32, i32),
	fnEntry("clock_res_get", wasiClockResGet, i32, i32),
	fnEntry("clock_time_get", wasiClockTimeGet, i32, i64, i32),
	fnEntry("fd_advise", wasiFdAdvise, i32, i64, i64, i32),
	stubEntry("fd_allocate", i32, i64, i64),
	fnEntry("fd_close", wasiFdClose, i32),
	fnEntry("fd_datasync", wasiFdSync, i32),
	fnEntry("fd_fdstat_get", wasiFdFdstatGet, i32, i32),
	stubEntry("fd_fdstat_set_flags", i32, i32),
	stubEntry("fd_fdstat_set_rights", i32, i64, i64),
	fnEntry("fd_filestat_get", wasiFdFilestatGet, i32, i32),
	fnEntry("fd_filestat_set_size", wasiFdFilestatSetSize, i32, i64),
	fnEntry("fd_filestat_set_times", wasiFdFilestatSetTimes, i32, i64, i64, i32),
	fnEntry("fd_pread", wasiFdPread, i32, i32, i32, i64, i32),
	fnEntry("fd_prestat_get", wasiFdPrestatGet, i32, i32),
	fnEntry("fd_prestat_dir_name", wasiFdPrestatDirName, i32, i32, i32),
	fnEntry("fd_pwrite", wasiFdPwrite, i32, i32, i32, i64, i32),
	fnEntry("fd_read", wasiFdRead, i32, i32, i32, i32),
	fnEntry("fd_readdir", wasiFdReaddir, i32, i32, i32, i64, i32),
	fnEntry("fd_renumber", wasiFdRenumber, i32, i32),
	fnEntry("fd_seek", wasiFdSeek, i32, i64, i32, i32),
	fnEntry("fd_sync", wasiFdSync, i32),
	fnEntry("fd_tell", wasiFdTell, i32, i32),
	fnEntry("fd_write", wasiFdWrite, i32, i32, i32, i32),
	fnEntry("path_create_directory", wasiPathCreateDirectory, i32, i32, i32),
	fnEntry("path_filestat_get", wasiPathFilestatGet, i32, i32, i32, i32, i32),
	fnEntry("path_filestat_set_times", wasiPathFilestatSetTimes, i32, i32, i32, i32, i64, i64, i32),
	fnEntry("path_link", wasiPathLink, i32, i32, i32, i32, i32, i32, i32),
	fnEntry("path_open", wasiPathOpen, i32, i32, i32, i32, i32, i64, i64, i32, i32),
	fnEntry("path_readlink", wasiPathReadlink, i32, i32, i32, i32, i32, i32),
	fnEntry("path_remove_directory", wasiPathRemoveDirectory, i32, i32, i32),
	fnEntry("path_rename", wasiPathRename, i32, i32, i32, i32, i32, i32),
	fnEntry("path_symlink", wasiPathSymlink, i32, i32, i32, i32, i32),
	fnEntry("path_unlink_file", wasiPathUnlinkFile, i32, i32, i32),
	fnEntry("poll_oneoff", wasiPollOneoff, i32, i32, i32, i32),
	{name: "proc_exit", params: []api.ValueType{i32}, fn: wasiProcExit},
	stubEntry("proc_raise", i32),
	fnEntry("random_get", wasiRandomGet, i32, i32),
	fnEntry("sched_yield", wasiSchedYield),
	stubEntry("sock_accept", i32, i32, i32),
	stubEntry("sock_recv", i32, i32, i32, i32, i32, i32),
	stubEntry("sock_send", i32, i32, i32, i32, i32),
	stubEntry("sock_shutdown", i32, i32),
}

// writeStringArray lays out items as args_get/environ_get expect: a table
// of uint32 offsets at arrPtr, and the null-terminated strings packed at
// bufPtr.
func writeStringArray(mem api.Memory, items []string, arrPtr, bufPtr uint32) Errno {
	for _, s := range items {
		if !mem.WriteUint32Le(arrPtr, bufPtr) {
			return ErrnoFault
		}
		arrPtr += 4
		if !mem.Write(bufPtr, []byte(s)) {
			return ErrnoFault
		}
		if !mem.WriteByte(bufPtr+uint32(len(s)), 0) {
			return ErrnoFault
		}
		bufPtr += uint32(len(s)) + 1
	}
	return ErrnoSuccess
}

// stringArraySizes reports the element count and the packed buffer size,
// including the null terminators.
func stringArraySizes(items []string) (count, bufLen uint32) {
	for _, s := range items {
		bufLen += uint32(len(s)) + 1
	}
	return uint32(len(items)), bufLen
}

func writeSizesPair(mem api.Memory, aPtr, aVal, bPtr, bVal uint32) Errno {
	if !mem.WriteUint32Le(aPtr, aVal) || !mem.WriteUint32Le(bPtr, bVal) {
		return ErrnoFault
	}
	return ErrnoSuccess
}

func wasiArgsGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(writeStringArray(mod.Memory(), e.args, uint32(stack[0]), uint32(stack[1])))
}

func wasiArgsSizesGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	count, bufLen := stringArraySizes(e.args)
	stack[0] = uint64(writeSizesPair(mod.Memory(), uint32(stack[0]), count, uint32(stack[1]), bufLen))
}

func wasiEnvironGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	stack[0] = uint64(writeStringArray(mod.Memory(), e.environ, uint32(stack[0]), uint32(stack[1])))
}

func wasiEnvironSizesGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	count, bufLen := stringArraySizes(e.environ)
	stack[0] = uint64(writeSizesPair(mod.Memory(), uint32(stack[0]), count, uint32(stack[1]), bufLen))
}

// WASI clock identifiers.
const (
	clockRealtime  = 0
	clockMonotonic = 1
)

func wasiClockResGet(_ *Env, _ context.Context, mod api.Module, stack []uint64) {
	var res uint64
	switch uint32(stack[0]) {
	case clockRealtime:
		res = 1000 // microsecond granularity
	case clockMonotonic:
		res = 1
	default:
		stack[0] = uint64(ErrnoInval)
		return
	}
	if !mod.Memory().WriteUint64Le(uint32(stack[1]), res) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiClockTimeGet(e *Env, _ context.Context, mod api.Module, stack []uint64) {
	var now uint64
	switch uint32(stack[0]) {
	case clockRealtime:
		now = uint64(time.Now().UnixNano())
	case clockMonotonic:
		now = uint64(time.Since(e.epoch))
	default:
		stack[0] = uint64(ErrnoInval)
		return
	}
	if !mod.Memory().WriteUint64Le(uint32(stack[2]), now) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiRandomGet(_ *Env, _ context.Context, mod api.Module, stack []uint64) {
	buf, ok := mod.Memory().Read(uint32(stack[0]), uint32(stack[1]))
	if !ok {
		stack[0] = uint64(ErrnoFault)
		return
	}
	if _, err := rand.Read(buf); err != nil {
		stack[0] = uint64(ErrnoIo)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}

func wasiSchedYield(_ *Env, _ context.Context, _ api.Module, stack []uint64) {
	goruntime.Gosched()
	stack[0] = uint64(ErrnoSuccess)
}

// proc_exit closes the module with the guest's code and unwinds the call
// stack. The exit error is recovered by the call layer, which reports code
// zero as success and anything else as an exit error.
func wasiProcExit(_ *Env, ctx context.Context, mod api.Module, stack []uint64) {
	code := uint32(stack[0])
	_ = mod.CloseWithExitCode(ctx, code)
	panic(sys.NewExitError(code))
}

// Subscription layout constants for poll_oneoff.
const (
	subscriptionSize = 48
	eventSize        = 32

	eventClock = 0
	eventRead  = 1
	eventWrite = 2

	subClockFlagAbstime = 1
)

// wasiPollOneoff services the common cases: sleeping on relative or
// absolute clock subscriptions, and reporting descriptor subscriptions
// ready immediately. When both kinds are present the descriptor events win
// and no sleep happens, which is how single-threaded guests expect timers
// mixed with ready pipes to behave.
func wasiPollOneoff(e *Env, ctx context.Context, mod api.Module, stack []uint64) {
	in, out := uint32(stack[0]), uint32(stack[1])
	nsubs, neventsPtr := uint32(stack[2]), uint32(stack[3])
	if nsubs == 0 {
		stack[0] = uint64(ErrnoInval)
		return
	}
	mem := mod.Memory()

	type clockSub struct {
		userdata uint64
		wait     time.Duration
	}
	var clocks []clockSub
	var fdEvents []struct {
		userdata uint64
		typ      byte
	}

	for i := uint32(0); i < nsubs; i++ {
		base := in + i*subscriptionSize
		userdata, ok1 := mem.ReadUint64Le(base)
		tag, ok2 := mem.ReadByte(base + 8)
		if !ok1 || !ok2 {
			stack[0] = uint64(ErrnoFault)
			return
		}
		switch tag {
		case eventClock:
			timeout, ok1 := mem.ReadUint64Le(base + 24)
			flags, ok2 := mem.ReadUint16Le(base + 40)
			clockID, ok3 := mem.ReadUint32Le(base + 16)
			if !ok1 || !ok2 || !ok3 {
				stack[0] = uint64(ErrnoFault)
				return
			}
			wait := time.Duration(timeout)
			if flags&subClockFlagAbstime != 0 {
				switch clockID {
				case clockRealtime:
					wait = time.Until(time.Unix(0, int64(timeout)))
				case clockMonotonic:
					wait = time.Duration(timeout) - time.Since(e.epoch)
				}
			}
			if wait < 0 {
				wait = 0
			}
			clocks = append(clocks, clockSub{userdata: userdata, wait: wait})
		case eventRead, eventWrite:
			fdEvents = append(fdEvents, struct {
				userdata uint64
				typ      byte
			}{userdata, tag})
		default:
			stack[0] = uint64(ErrnoInval)
			return
		}
	}

	writeEvent := func(slot uint32, userdata uint64, typ byte) bool {
		base := out + slot*eventSize
		// Zero the record first: nbytes and flags read as zero.
		if !mem.Write(base, make([]byte, eventSize)) {
			return false
		}
		return mem.WriteUint64Le(base, userdata) &&
			mem.WriteUint16Le(base+8, uint16(ErrnoSuccess)) &&
			mem.WriteByte(base+10, typ)
	}

	var nevents uint32
	if len(fdEvents) > 0 {
		for _, ev := range fdEvents {
			if !writeEvent(nevents, ev.userdata, ev.typ) {
				stack[0] = uint64(ErrnoFault)
				return
			}
			nevents++
		}
	} else {
		min := clocks[0].wait
		for _, c := range clocks[1:] {
			if c.wait < min {
				min = c.wait
			}
		}
		if min > 0 {
			timer := time.NewTimer(min)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		for _, c := range clocks {
			if c.wait <= min {
				if !writeEvent(nevents, c.userdata, eventClock) {
					stack[0] = uint64(ErrnoFault)
					return
				}
				nevents++
			}
		}
	}

	if !mem.WriteUint32Le(neventsPtr, nevents) {
		stack[0] = uint64(ErrnoFault)
		return
	}
	stack[0] = uint64(ErrnoSuccess)
}
