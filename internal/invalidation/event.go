// Package invalidation defines the catalog change events published by
// upstream editors. Consuming them keeps the layer cache and the
// localization cache from serving stale catalog state.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Table   string    `json:"table"`
	TS      time.Time `json:"ts"`
	IDs     []string  `json:"ids,omitempty"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Table) == "" {
		return fmt.Errorf("table is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
