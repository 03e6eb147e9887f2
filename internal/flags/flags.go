// Package flags holds the process-wide feature flags read by the
// orchestrator. Readers take an immutable snapshot at the start of each call
// so a concurrent administrative update never flips behaviour mid-request.
package flags

import "sync"

// Flags is the set of runtime feature toggles. The zero value disables
// everything; use Defaults for the shipping configuration.
type Flags struct {
	UseCache            bool `json:"useCache" yaml:"use_cache"`
	UseRequestQueue     bool `json:"useRequestQueue" yaml:"use_request_queue"`
	FallbackEnabled     bool `json:"fallbackEnabled" yaml:"fallback_enabled"`
	Chat                bool `json:"chat" yaml:"chat"`
	Research            bool `json:"research" yaml:"research"`
	ContractAnalysis    bool `json:"contractAnalysis" yaml:"contract_analysis"`
	DocumentEnhancement bool `json:"documentEnhancement" yaml:"document_enhancement"`
	DetailedLogging     bool `json:"detailedLogging" yaml:"detailed_logging"`
}

// Defaults returns the default flag set: everything on except detailed logging.
func Defaults() Flags {
	return Flags{
		UseCache:            true,
		UseRequestQueue:     true,
		FallbackEnabled:     true,
		Chat:                true,
		Research:            true,
		ContractAnalysis:    true,
		DocumentEnhancement: true,
	}
}

// Patch is a partial flag update; nil fields are left unchanged.
type Patch struct {
	UseCache            *bool `json:"useCache"`
	UseRequestQueue     *bool `json:"useRequestQueue"`
	FallbackEnabled     *bool `json:"fallbackEnabled"`
	Chat                *bool `json:"chat"`
	Research            *bool `json:"research"`
	ContractAnalysis    *bool `json:"contractAnalysis"`
	DocumentEnhancement *bool `json:"documentEnhancement"`
	DetailedLogging     *bool `json:"detailedLogging"`
}

// Store holds the current flags behind a RWMutex. Snapshot is the only read
// path and Apply the only write path.
type Store struct {
	mu      sync.RWMutex
	current Flags
}

// NewStore creates a Store with the given initial flags.
func NewStore(initial Flags) *Store {
	return &Store{current: initial}
}

// Snapshot returns a copy of the current flags.
func (s *Store) Snapshot() Flags {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply merges a partial update into the current flags and returns the result.
func (s *Store) Apply(p Patch) Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&s.current.UseCache, p.UseCache)
	apply(&s.current.UseRequestQueue, p.UseRequestQueue)
	apply(&s.current.FallbackEnabled, p.FallbackEnabled)
	apply(&s.current.Chat, p.Chat)
	apply(&s.current.Research, p.Research)
	apply(&s.current.ContractAnalysis, p.ContractAnalysis)
	apply(&s.current.DocumentEnhancement, p.DocumentEnhancement)
	apply(&s.current.DetailedLogging, p.DetailedLogging)
	return s.current
}
