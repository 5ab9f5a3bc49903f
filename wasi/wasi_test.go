package wasi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/0x7CFE/wasmer/errors"
)

type staticInstance string

func (s staticInstance) ModuleName() string { return string(s) }

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "ok", cfg: NewConfig("app").Argument("-v").Environment("HOME", "/")},
		{name: "empty_program", cfg: NewConfig(""), wantErr: "program name"},
		{name: "nul_program", cfg: NewConfig("a\x00b"), wantErr: "NUL"},
		{name: "nul_arg", cfg: NewConfig("app").Argument("x\x00y"), wantErr: "NUL"},
		{name: "empty_env_key", cfg: NewConfig("app").Environment("", "v"), wantErr: "keys"},
		{name: "nul_env_value", cfg: NewConfig("app").Environment("K", "v\x00"), wantErr: "NUL"},
		{name: "empty_preopen", cfg: NewConfig("app").PreopenDirectory("", "/data"), wantErr: "preopen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEnv(tt.cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewEnv failed: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("NewEnv succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
			if !errors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
				t.Errorf("error kind = %v, want invalid_input", err)
			}
		})
	}
}

func TestNewEnvArgs(t *testing.T) {
	env, err := NewEnv(NewConfig("app").Argument("one").Argument("two"))
	if err != nil {
		t.Fatalf("NewEnv failed: %v", err)
	}
	want := []string{"app", "one", "two"}
	if len(env.args) != len(want) {
		t.Fatalf("args = %v, want %v", env.args, want)
	}
	for i := range want {
		if env.args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, env.args[i], want[i])
		}
	}
}

func TestNewEnvPreopens(t *testing.T) {
	t.Run("seeded_from_fd_3", func(t *testing.T) {
		dir := t.TempDir()
		env, err := NewEnv(NewConfig("app").PreopenDirectory(dir, "/data"))
		if err != nil {
			t.Fatalf("NewEnv failed: %v", err)
		}
		entry, ok := env.fds.get(3)
		if !ok {
			t.Fatal("fd 3 missing")
		}
		if !entry.preopen || !entry.dir {
			t.Errorf("fd 3 = %+v, want preopen directory", entry)
		}
		if entry.guestPath != "/data" || entry.hostPath != dir {
			t.Errorf("fd 3 paths = %q -> %q", entry.guestPath, entry.hostPath)
		}
	})

	t.Run("missing_directory", func(t *testing.T) {
		_, err := NewEnv(NewConfig("app").PreopenDirectory(filepath.Join(t.TempDir(), "nope"), "/x"))
		if err == nil {
			t.Fatal("NewEnv succeeded with missing preopen")
		}
		if !errors.Is(err, &errors.Error{Kind: errors.KindIO}) {
			t.Errorf("error kind = %v, want io", err)
		}
	})

	t.Run("not_a_directory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "f")
		if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := NewEnv(NewConfig("app").PreopenDirectory(file, "/x"))
		if err == nil || !strings.Contains(err.Error(), "not a directory") {
			t.Fatalf("err = %v, want not a directory", err)
		}
	})
}

func TestBindInstance(t *testing.T) {
	env, err := NewEnv(NewConfig("app"))
	if err != nil {
		t.Fatalf("NewEnv failed: %v", err)
	}
	if env.Bound() {
		t.Fatal("fresh env reports bound")
	}
	if err := env.BindInstance(nil); err == nil {
		t.Fatal("BindInstance(nil) succeeded")
	}
	if err := env.BindInstance(staticInstance("main")); err != nil {
		t.Fatalf("BindInstance failed: %v", err)
	}
	if !env.Bound() {
		t.Fatal("env not bound after BindInstance")
	}
	err = env.BindInstance(staticInstance("other"))
	if err == nil {
		t.Fatal("second BindInstance succeeded")
	}
	if !strings.Contains(err.Error(), `"main"`) {
		t.Errorf("error %q does not name the bound instance", err)
	}
}

func TestDispatchNotBound(t *testing.T) {
	env, err := NewEnv(NewConfig("app"))
	if err != nil {
		t.Fatalf("NewEnv failed: %v", err)
	}
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("dispatch on unbound env did not panic")
		}
		perr, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %T is not an error", r)
		}
		var werr *errors.Error
		if !errors.As(perr, &werr) || werr.Kind != errors.KindNotBound {
			t.Fatalf("panic error = %v, want not_bound", perr)
		}
		if !strings.Contains(perr.Error(), "args_get") {
			t.Errorf("error %q does not name the host function", perr)
		}
	}()
	env.dispatch(context.Background(), nil, hostFuncIndex["args_get"], make([]uint64, 2))
}

func TestStdioCapture(t *testing.T) {
	env, err := NewEnv(NewConfig("app").CaptureStdout())
	if err != nil {
		t.Fatalf("NewEnv failed: %v", err)
	}
	if _, err := env.stdout.Write([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if _, err := env.stdout.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}
	out, err := env.ReadStdout()
	if err != nil {
		t.Fatalf("ReadStdout failed: %v", err)
	}
	if string(out) != "hello world" {
		t.Errorf("stdout = %q", out)
	}
	out, err = env.ReadStdout()
	if err != nil || len(out) != 0 {
		t.Errorf("second ReadStdout = %q, %v; want empty", out, err)
	}
	if _, err := env.ReadStderr(); err == nil {
		t.Error("ReadStderr succeeded on inherited stderr")
	}
}

func TestFDTable(t *testing.T) {
	table := newFDTable(bytes.NewReader(nil), io.Discard, io.Discard)
	for fd := uint32(0); fd < 3; fd++ {
		if _, ok := table.get(fd); !ok {
			t.Fatalf("fd %d missing", fd)
		}
	}
	fd := table.add(&fdEntry{dir: true, hostPath: "/tmp"})
	if fd != 3 {
		t.Fatalf("first added fd = %d, want 3", fd)
	}

	if errno := table.renumber(fd, 9); errno != ErrnoSuccess {
		t.Fatalf("renumber = %s", ErrnoName(errno))
	}
	if _, ok := table.get(fd); ok {
		t.Error("old fd still mapped after renumber")
	}
	if entry, ok := table.get(9); !ok || entry.hostPath != "/tmp" {
		t.Error("renumbered fd missing")
	}
	if errno := table.renumber(42, 1); errno != ErrnoBadf {
		t.Errorf("renumber of unknown fd = %s, want EBADF", ErrnoName(errno))
	}

	if _, ok := table.remove(9); !ok {
		t.Fatal("remove failed")
	}
	if _, ok := table.get(9); ok {
		t.Error("fd still mapped after remove")
	}

	table.closeAll()
	if _, ok := table.get(0); ok {
		t.Error("stdin survived closeAll")
	}
}

func TestResolvePath(t *testing.T) {
	dir := &fdEntry{dir: true, hostPath: filepath.FromSlash("/srv/box")}
	tests := []struct {
		name      string
		guest     string
		wantHost  string
		wantErrno Errno
	}{
		{name: "plain", guest: "a/b.txt", wantHost: "/srv/box/a/b.txt"},
		{name: "rooted", guest: "/a", wantHost: "/srv/box/a"},
		{name: "dot", guest: ".", wantHost: "/srv/box"},
		{name: "empty_after_clean", guest: "/", wantHost: "/srv/box"},
		{name: "inner_dotdot", guest: "a/../b", wantHost: "/srv/box/b"},
		{name: "escape", guest: "..", wantErrno: ErrnoNotcapable},
		{name: "escape_nested", guest: "../etc/passwd", wantErrno: ErrnoNotcapable},
		{name: "escape_after_clean", guest: "a/../../x", wantErrno: ErrnoNotcapable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, errno := resolvePath(dir, tt.guest)
			if errno != tt.wantErrno {
				t.Fatalf("errno = %s, want %s", ErrnoName(errno), ErrnoName(tt.wantErrno))
			}
			if tt.wantErrno == ErrnoSuccess && host != filepath.FromSlash(tt.wantHost) {
				t.Errorf("host = %q, want %q", host, filepath.FromSlash(tt.wantHost))
			}
		})
	}

	t.Run("not_a_directory", func(t *testing.T) {
		if _, errno := resolvePath(&fdEntry{}, "x"); errno != ErrnoNotdir {
			t.Errorf("errno = %s, want ENOTDIR", ErrnoName(errno))
		}
	})
}

func TestApplyTimes(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	want := time.Unix(1700000000, 0)
	if errno := applyTimes(file, 0, want.UnixNano(), fstflagMtim); errno != ErrnoSuccess {
		t.Fatalf("applyTimes = %s", ErrnoName(errno))
	}
	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(want) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), want)
	}

	if errno := applyTimes(file, 0, 0, fstflagMtim|fstflagMtimNow); errno != ErrnoInval {
		t.Errorf("conflicting flags = %s, want EINVAL", ErrnoName(errno))
	}
	if errno := applyTimes(filepath.Join(t.TempDir(), "nope"), 0, 0, fstflagMtimNow); errno != ErrnoNoent {
		t.Errorf("missing file = %s, want ENOENT", ErrnoName(errno))
	}
}

func TestErrnoFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Errno
	}{
		{name: "nil", err: nil, want: ErrnoSuccess},
		{name: "not_exist", err: fs.ErrNotExist, want: ErrnoNoent},
		{name: "exist", err: fs.ErrExist, want: ErrnoExist},
		{name: "permission", err: fs.ErrPermission, want: ErrnoAcces},
		{name: "closed", err: fs.ErrClosed, want: ErrnoBadf},
		{name: "not_empty", err: syscall.ENOTEMPTY, want: ErrnoNotempty},
		{name: "is_dir", err: syscall.EISDIR, want: ErrnoIsdir},
		{name: "unknown", err: fmt.Errorf("boom"), want: ErrnoIo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errnoFor(tt.err); got != tt.want {
				t.Errorf("errnoFor = %s, want %s", ErrnoName(got), ErrnoName(tt.want))
			}
		})
	}

	t.Run("wrapped_path_error", func(t *testing.T) {
		_, err := os.Open(filepath.Join(t.TempDir(), "missing"))
		if got := errnoFor(err); got != ErrnoNoent {
			t.Errorf("errnoFor(open missing) = %s, want ENOENT", ErrnoName(got))
		}
	})
}

func TestErrnoName(t *testing.T) {
	if got := ErrnoName(ErrnoSuccess); got != "ESUCCESS" {
		t.Errorf("ErrnoName(0) = %q", got)
	}
	if got := ErrnoName(ErrnoNotcapable); got != "ENOTCAPABLE" {
		t.Errorf("ErrnoName(notcapable) = %q", got)
	}
	if got := ErrnoName(200); got != "E?" {
		t.Errorf("ErrnoName(200) = %q", got)
	}
}

func TestIsNamespace(t *testing.T) {
	if !IsNamespace("wasi_snapshot_preview1") || !IsNamespace("wasi_unstable") {
		t.Error("WASI namespaces not recognized")
	}
	if IsNamespace("env") || IsNamespace("wasi_snapshot_preview2") {
		t.Error("non-WASI namespace recognized")
	}
}
