package params

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cdpchain/core/events"
	"cdpchain/core/types"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// ErrUnknownModule rejects pause toggles for modules that cannot be paused.
var ErrUnknownModule = errors.New("params: unknown module")

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
	HasRole(role string, addr crypto.Address) bool
	Snapshot() int
	RevertToSnapshot(int)
}

// Pauses maps module names to their pause toggle. Absent modules run.
type Pauses map[string]bool

// Store provides typed accessors for governance-controlled parameters.
type Store struct {
	state   StoreState
	emitter events.Emitter
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter.
func (s *Store) SetEmitter(emitter events.Emitter) {
	if s == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s.emitter = emitter
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

func isKnown(module string) bool {
	for _, known := range KnownModules {
		if known == module {
			return true
		}
	}
	return false
}

// SetPauses merges the supplied toggles into the persisted pause
// configuration. Only root may change pauses. Values are marshalled as JSON
// to align with governance proposal payloads.
func (s *Store) SetPauses(origin types.Origin, updates Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if err := common.EnsureRoot(state, origin); err != nil {
		return err
	}
	current, err := s.Pauses()
	if err != nil {
		return err
	}
	for module, paused := range updates {
		module = strings.ToLower(strings.TrimSpace(module))
		if !isKnown(module) {
			return fmt.Errorf("%w: %q", ErrUnknownModule, module)
		}
		if paused {
			current[module] = true
		} else {
			delete(current, module)
		}
	}
	return common.Atomic(state, func() error {
		encoded, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("params: encode pauses: %w", err)
		}
		if err := state.ParamStoreSet(ParamsKeyPauses, encoded); err != nil {
			return err
		}
		s.emitter.Emit(events.PausesUpdated{Modules: current})
		return nil
	})
}

// Pauses loads the persisted pause configuration. When unset, an empty
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return nil, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return nil, err
	}
	pauses := Pauses{}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return pauses, nil
	}
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return nil, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

// PausedModules lists the paused modules in name order.
func (s *Store) PausedModules() ([]string, error) {
	pauses, err := s.Pauses()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pauses))
	for module, paused := range pauses {
		if paused {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out, nil
}

// IsPaused implements common.PauseView. Unreadable configuration counts as
// running.
func (s *Store) IsPaused(module string) bool {
	pauses, err := s.Pauses()
	if err != nil {
		return false
	}
	return pauses[strings.ToLower(module)]
}
