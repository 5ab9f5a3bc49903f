package wasi

import (
	"io"
	"strings"

	"github.com/0x7CFE/wasmer/errors"
)

type stdioMode int

const (
	stdioInherit stdioMode = iota
	stdioCapture
)

type preopen struct {
	host  string
	guest string
}

// Config describes a WASI environment before it is materialized by NewEnv.
// Builder methods mutate the receiver and return it for chaining.
type Config struct {
	programName string
	args        []string
	environ     []string
	preopens    []preopen
	stdin       io.Reader
	stdout      stdioMode
	stderr      stdioMode
}

// NewConfig starts a configuration. programName becomes the guest's argv[0].
func NewConfig(programName string) *Config {
	return &Config{programName: programName}
}

// Argument appends one guest argument after argv[0].
func (c *Config) Argument(arg string) *Config {
	c.args = append(c.args, arg)
	return c
}

// Environment sets one guest environment variable.
func (c *Config) Environment(key, value string) *Config {
	c.environ = append(c.environ, key+"="+value)
	return c
}

// PreopenDirectory grants the guest access to hostDir under guestPath.
// Preopens are handed out as descriptors 3, 4, ... in call order.
func (c *Config) PreopenDirectory(hostDir, guestPath string) *Config {
	c.preopens = append(c.preopens, preopen{host: hostDir, guest: guestPath})
	return c
}

// CaptureStdout buffers guest stdout for Env.ReadStdout.
func (c *Config) CaptureStdout() *Config {
	c.stdout = stdioCapture
	return c
}

// InheritStdout routes guest stdout to the host process stdout. This is the
// default.
func (c *Config) InheritStdout() *Config {
	c.stdout = stdioInherit
	return c
}

// CaptureStderr buffers guest stderr for Env.ReadStderr.
func (c *Config) CaptureStderr() *Config {
	c.stderr = stdioCapture
	return c
}

// InheritStderr routes guest stderr to the host process stderr. This is the
// default.
func (c *Config) InheritStderr() *Config {
	c.stderr = stdioInherit
	return c
}

// Stdin supplies the guest's standard input. Without it reads return EOF.
func (c *Config) Stdin(r io.Reader) *Config {
	c.stdin = r
	return c
}

// validate rejects configurations that cannot be encoded for the guest.
// WASI strings travel null-terminated, so NUL bytes are never allowed.
func (c *Config) validate() error {
	if c.programName == "" {
		return errors.InvalidInput(errors.PhaseWASI, "program name must not be empty")
	}
	if strings.ContainsRune(c.programName, 0) {
		return errors.InvalidInput(errors.PhaseWASI, "program name must not contain NUL")
	}
	for _, arg := range c.args {
		if strings.ContainsRune(arg, 0) {
			return errors.InvalidInput(errors.PhaseWASI, "arguments must not contain NUL")
		}
	}
	for _, kv := range c.environ {
		if strings.IndexByte(kv, '=') <= 0 {
			return errors.InvalidInput(errors.PhaseWASI, "environment keys must not be empty")
		}
		if strings.ContainsRune(kv, 0) {
			return errors.InvalidInput(errors.PhaseWASI, "environment must not contain NUL")
		}
	}
	for _, p := range c.preopens {
		if p.host == "" || p.guest == "" {
			return errors.InvalidInput(errors.PhaseWASI, "preopen paths must not be empty")
		}
	}
	return nil
}
