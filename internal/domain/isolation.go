package domain

import (
	"fmt"
	"strings"
)

type IsolationLevel string

const (
	ReadUncommitted IsolationLevel = "read uncommitted"
	ReadCommitted   IsolationLevel = "read committed"
	RepeatableRead  IsolationLevel = "repeatable read"
	Serializable    IsolationLevel = "serializable"
)

// ParseIsolationLevel принимает "read committed", "READ_COMMITTED", "read-committed"; пусто: read committed.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	switch IsolationLevel(norm) {
	case "":
		return ReadCommitted, nil
	case ReadUncommitted, ReadCommitted, RepeatableRead, Serializable:
		return IsolationLevel(norm), nil
	default:
		return "", fmt.Errorf("unknown isolation level %q", s)
	}
}
