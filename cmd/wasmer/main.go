package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/0x7CFE/wasmer/engine"
	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/runtime"
	"github.com/0x7CFE/wasmer/types"
	"github.com/0x7CFE/wasmer/wasi"
	"github.com/0x7CFE/wasmer/wat"
)

// BSD sysexits, so scripts can tell bad input apart from runtime failure.
// Guest exit codes pass through untouched.
const (
	exitUsage    = 2
	exitDataErr  = 65 // module or artifact rejected
	exitNoInput  = 66 // file missing or unreadable
	exitSoftware = 70 // link or call failure
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(argv []string) int {
	if len(argv) == 0 {
		usage()
		return exitUsage
	}
	switch argv[0] {
	case "run":
		return cmdRun(argv[1:])
	case "compile":
		return cmdCompile(argv[1:])
	case "inspect":
		return cmdInspect(argv[1:])
	case "validate":
		return cmdValidate(argv[1:])
	case "help", "-h", "-help", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "wasmer: unknown command %q\n\n", argv[0])
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `wasmer runs WebAssembly modules and manages precompiled object files.

usage: wasmer <command> [flags] <module> ...

commands:
  run       execute a module's entrypoint or a chosen export
  compile   precompile a module into an object file
  inspect   print a module's imports, exports and artifact header
  validate  check that a file holds a loadable module

Modules may be object files (.wasmo), raw binaries (.wasm) or text (.wat).
Run "wasmer <command> -h" for the command's flags.
`)
}

func report(err error) {
	fmt.Fprintf(os.Stderr, "wasmer: %v\n", err)
}

// exitCodeFor maps structured failures onto the sysexits convention.
func exitCodeFor(err error) int {
	var werr *errors.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case errors.KindIO:
			return exitNoInput
		case errors.KindFormat, errors.KindInvalidInput:
			return exitDataErr
		}
	}
	return exitSoftware
}

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func installVerboseLogger() {
	log, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	engine.SetLogger(log)
}

func isWasmBinary(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == "\x00asm"
}

// session bundles the engine and store a command works in.
type session struct {
	eng   *engine.Engine
	store *runtime.Store
}

func (s *session) close(ctx context.Context) {
	_ = s.store.Close(ctx)
	_ = s.eng.Close(ctx)
}

// openSession picks the engine by content: artifacts run on the object-file
// engine, everything else is compiled by the JIT engine.
func openSession(ctx context.Context, data []byte) (*session, error) {
	var (
		eng *engine.Engine
		err error
	)
	if engine.IsArtifact(data) {
		eng, err = engine.NewObjectFileEngine()
	} else {
		eng, err = engine.NewJITEngine()
	}
	if err != nil {
		return nil, err
	}
	store, err := runtime.NewStore(ctx, eng)
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	return &session{eng: eng, store: store}, nil
}

// compileInput turns file bytes into a module: artifacts are unwrapped,
// binaries compiled directly, anything else is treated as WAT source.
func compileInput(ctx context.Context, store *runtime.Store, data []byte) (*runtime.Module, error) {
	switch {
	case engine.IsArtifact(data):
		art, err := engine.DecodeArtifact(data)
		if err != nil {
			return nil, err
		}
		return runtime.CompileModule(ctx, store, art.Wasm)
	case isWasmBinary(data):
		return runtime.CompileModule(ctx, store, data)
	default:
		bin, err := wat.Compile(string(data))
		if err != nil {
			return nil, errors.Format("compile text source", err)
		}
		return runtime.CompileModule(ctx, store, bin)
	}
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		entry       = fs.String("entry", "_start", "exported function to call")
		argv0       = fs.String("argv0", "", "guest-visible program name (default: module file name)")
		timeout     = fs.Duration("timeout", 0, "abort the call after this duration")
		interactive = fs.Bool("i", false, "pick functions and arguments interactively")
		verbose     = fs.Bool("verbose", false, "log engine internals to stderr")
		envs        listFlag
		dirs        listFlag
	)
	fs.Var(&envs, "env", "guest environment variable KEY=VALUE (repeatable)")
	fs.Var(&dirs, "dir", "preopen directory HOST[:GUEST] (repeatable)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: wasmer run [flags] <module> [guest args...]")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		fs.Usage()
		return exitUsage
	}
	if *verbose {
		installVerboseLogger()
	}

	path := fs.Arg(0)
	guestArgs := fs.Args()[1:]

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		report(err)
		return exitNoInput
	}
	sess, err := openSession(ctx, data)
	if err != nil {
		report(err)
		return exitSoftware
	}
	defer sess.close(context.Background())

	mod, err := compileInput(ctx, sess.store, data)
	if err != nil {
		report(err)
		return exitCodeFor(err)
	}

	useTUI := *interactive
	if useTUI && (!term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd()))) {
		fmt.Fprintln(os.Stderr, "wasmer: -i needs a terminal, running non-interactively")
		useTUI = false
	}

	// When the chosen export takes parameters, the trailing arguments are
	// typed values for it; otherwise they become the guest's argv.
	var callArgs []types.Value
	wasiArgs := guestArgs
	if !useTUI {
		exp, ok := mod.ExportType(*entry)
		if !ok {
			fmt.Fprintf(os.Stderr, "wasmer: module has no export %q\n", *entry)
			return exitSoftware
		}
		if exp.Type.Kind() != types.ExternFunc {
			fmt.Fprintf(os.Stderr, "wasmer: export %q is a %s, not a function\n", *entry, exp.Type.Kind())
			return exitSoftware
		}
		sig := exp.Type.Func()
		if len(sig.Params) > 0 {
			if len(guestArgs) != len(sig.Params) {
				fmt.Fprintf(os.Stderr, "wasmer: %s%s takes %d arguments, got %d\n",
					*entry, sig, len(sig.Params), len(guestArgs))
				return exitUsage
			}
			callArgs = make([]types.Value, len(sig.Params))
			for i, raw := range guestArgs {
				v, perr := types.ParseValue(sig.Params[i], raw)
				if perr != nil {
					fmt.Fprintf(os.Stderr, "wasmer: argument %d: %v\n", i, perr)
					return exitUsage
				}
				callArgs[i] = v
			}
			wasiArgs = nil
		}
	}

	programName := *argv0
	if programName == "" {
		programName = filepath.Base(path)
	}
	cfg := wasi.NewConfig(programName)
	for _, a := range wasiArgs {
		cfg.Argument(a)
	}
	for _, kv := range envs {
		k, v, found := strings.Cut(kv, "=")
		if !found {
			fmt.Fprintf(os.Stderr, "wasmer: -env wants KEY=VALUE, got %q\n", kv)
			return exitUsage
		}
		cfg.Environment(k, v)
	}
	for _, d := range dirs {
		host, guest, found := strings.Cut(d, ":")
		if !found {
			guest = host
		}
		cfg.PreopenDirectory(host, guest)
	}
	if !useTUI && !term.IsTerminal(int(os.Stdin.Fd())) {
		cfg.Stdin(os.Stdin)
	}

	env, err := wasi.NewEnv(cfg)
	if err != nil {
		report(err)
		return exitCodeFor(err)
	}
	defer env.Close()

	externs, err := runtime.ResolveImports(ctx, sess.store, mod, env)
	if err != nil {
		report(err)
		return exitSoftware
	}
	inst, err := runtime.NewInstance(ctx, sess.store, mod, externs)
	if err != nil {
		if code, ok := errors.AsExit(err); ok {
			return int(code)
		}
		report(err)
		return exitSoftware
	}
	if err := env.BindInstance(inst); err != nil {
		report(err)
		return exitSoftware
	}

	if useTUI {
		if err := runInteractive(ctx, inst, path); err != nil {
			report(err)
			return exitSoftware
		}
		return 0
	}

	res, err := inst.Call(ctx, *entry, callArgs...)
	if err != nil {
		if code, ok := errors.AsExit(err); ok {
			return int(code)
		}
		report(err)
		return exitSoftware
	}
	for _, v := range res {
		fmt.Println(v.String())
	}
	return 0
}

func cmdCompile(args []string) int {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	var (
		out     = fs.String("o", "", "output path (default: input with a .wasmo extension)")
		verbose = fs.Bool("verbose", false, "log engine internals to stderr")
	)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: wasmer compile [-o out.wasmo] <module.wasm|module.wat>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	if *verbose {
		installVerboseLogger()
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		report(err)
		return exitNoInput
	}
	if engine.IsArtifact(data) {
		fmt.Fprintf(os.Stderr, "wasmer: %s is already an object file\n", path)
		return exitDataErr
	}

	ctx := context.Background()
	sess, err := openSession(ctx, data)
	if err != nil {
		report(err)
		return exitSoftware
	}
	defer sess.close(ctx)

	// Compiling through a store means the artifact only ever contains a
	// module the engine accepted.
	mod, err := compileInput(ctx, sess.store, data)
	if err != nil {
		report(err)
		return exitCodeFor(err)
	}

	outPath := *out
	if outPath == "" {
		ext := filepath.Ext(path)
		outPath = strings.TrimSuffix(path, ext) + ".wasmo"
	}
	if err := mod.SerializeToFile(outPath); err != nil {
		report(err)
		return exitSoftware
	}
	fmt.Printf("%s -> %s\n", path, outPath)
	return 0
}

func cmdInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: wasmer inspect <module>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		report(err)
		return exitNoInput
	}

	fmt.Printf("%s:\n", path)
	if engine.IsArtifact(data) {
		art, aerr := engine.DecodeArtifact(data)
		if aerr != nil {
			report(aerr)
			return exitDataErr
		}
		fmt.Printf("  object file: engine %s, target %s, features %s, %d bytes of wasm\n",
			art.EngineVersion, art.Triple, art.Features, len(art.Wasm))
	}

	ctx := context.Background()
	sess, err := openSession(ctx, data)
	if err != nil {
		report(err)
		return exitSoftware
	}
	defer sess.close(ctx)

	mod, err := compileInput(ctx, sess.store, data)
	if err != nil {
		report(err)
		return exitCodeFor(err)
	}

	imports := mod.Imports()
	fmt.Printf("  imports (%d):\n", len(imports))
	for _, imp := range imports {
		fmt.Printf("    %s.%s: %s\n", imp.Module, imp.Name, imp.Type)
	}
	exports := mod.Exports()
	fmt.Printf("  exports (%d):\n", len(exports))
	for _, exp := range exports {
		fmt.Printf("    %s: %s\n", exp.Name, exp.Type)
	}
	return 0
}

func cmdValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: wasmer validate <module>")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		report(err)
		return exitNoInput
	}

	bin := data
	switch {
	case engine.IsArtifact(data):
		art, aerr := engine.DecodeArtifact(data)
		if aerr != nil {
			report(aerr)
			return exitDataErr
		}
		bin = art.Wasm
	case !isWasmBinary(data):
		bin, err = wat.Compile(string(data))
		if err != nil {
			report(err)
			return exitDataErr
		}
	}
	if err := runtime.ValidateModule(bin); err != nil {
		report(err)
		return exitDataErr
	}
	return 0
}
