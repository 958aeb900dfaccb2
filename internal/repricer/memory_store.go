package repricer

import (
	"context"
	"sync"
	"time"
)

// RuleRepository persists the rule table. Load returns a snapshot the caller
// owns; later saves never affect a snapshot already handed out.
type RuleRepository interface {
	Load(ctx context.Context) (RuleConfig, error)
	Save(ctx context.Context, cfg RuleConfig) error
}

// MemoryRuleStore is an in-memory implementation of RuleRepository.
type MemoryRuleStore struct {
	mu  sync.RWMutex
	cfg RuleConfig
	now func() time.Time
}

func NewMemoryRuleStore(initial RuleConfig) *MemoryRuleStore {
	return &MemoryRuleStore{cfg: initial.Clone(), now: time.Now}
}

func (s *MemoryRuleStore) Load(ctx context.Context) (RuleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone(), nil
}

func (s *MemoryRuleStore) Save(ctx context.Context, cfg RuleConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
	s.cfg.UpdatedAt = s.now()
	return nil
}
