// Package rulestore persists the rule table as the JSON document the
// settings surface edits.
package rulestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sedori-tools/repricer/internal/repricer"
)

// decode turns stored bytes into a snapshot. A *repricer.ConfigError is
// returned for documents that parse but describe an unusable table.
func decode(data []byte) (repricer.RuleConfig, error) {
	doc, err := repricer.ParseDocument(data)
	if err != nil {
		return repricer.RuleConfig{}, err
	}
	return repricer.Normalize(doc)
}

func encode(cfg repricer.RuleConfig, now time.Time) ([]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = now.UTC()
	data, err := json.MarshalIndent(cfg.Document(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule document: %w", err)
	}
	return data, nil
}
