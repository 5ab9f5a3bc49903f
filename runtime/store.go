package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/0x7CFE/wasmer/engine"
	"github.com/0x7CFE/wasmer/errors"
	"github.com/0x7CFE/wasmer/wasi"
)

// Store is one linking domain: a wazero runtime plus everything
// instantiated in it. Modules, environments and instances created through
// a store die with it.
type Store struct {
	engine *engine.Engine
	rt     wazero.Runtime
	log    *zap.Logger

	mu        sync.Mutex
	closed    bool
	instances []*Instance
	envs      []*wasi.Env
	nextID    int
}

// NewStore creates a store backed by eng. It fails only when the engine is
// already closed.
func NewStore(ctx context.Context, eng *engine.Engine) (*Store, error) {
	rt, err := eng.NewRuntime(ctx)
	if err != nil {
		return nil, err
	}
	s := &Store{
		engine: eng,
		rt:     rt,
		log:    engine.Logger(),
	}
	s.log.Debug("store created", zap.String("backend", string(eng.Backend())))
	return s, nil
}

// Engine returns the engine this store was created from.
func (s *Store) Engine() *engine.Engine { return s.engine }

// runtime exposes the underlying wazero runtime to the rest of the package.
func (s *Store) runtime() wazero.Runtime { return s.rt }

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// nextInstanceName hands out unique wazero module names. wazero requires
// distinct names per runtime, and guests rarely carry one of their own.
func (s *Store) nextInstanceName(hint string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if hint == "" {
		hint = "instance"
	}
	return fmt.Sprintf("%s-%d", hint, s.nextID)
}

func (s *Store) trackInstance(inst *Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, inst)
}

func (s *Store) trackEnv(env *wasi.Env) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.envs {
		if e == env {
			return
		}
	}
	s.envs = append(s.envs, env)
}

// Close tears down the store: instances are marked closed first, so a
// misplaced concurrent Call fails with a closed error instead of reaching a
// dead runtime, then environments release their descriptors and the wazero
// runtime is closed. Closing twice is a no-op.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	instances := s.instances
	envs := s.envs
	s.instances = nil
	s.envs = nil
	s.mu.Unlock()

	for _, inst := range instances {
		inst.markClosed()
	}
	for _, env := range envs {
		env.Close()
	}
	if err := s.rt.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "close store runtime")
	}
	s.log.Debug("store closed",
		zap.Int("instances", len(instances)),
		zap.Int("environments", len(envs)))
	return nil
}
