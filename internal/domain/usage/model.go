package usage

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ActionKind string

const (
	ActionAIRequest ActionKind = "AI_REQUEST"
)

// Kinds lists every action kind that can be metered.
var Kinds = []ActionKind{ActionAIRequest}

var ErrUnknownKind = errors.New("unknown action kind")

// ParseKind maps a configured name onto a known kind, ignoring case.
func ParseKind(s string) (ActionKind, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Record is one metered action attempt. Rows are only ever appended.
type Record struct {
	ID          uint       `gorm:"primaryKey"`
	UserID      uint       `gorm:"not null;index:idx_usage_records_user_kind_created,priority:1"`
	ActionKind  ActionKind `gorm:"column:action_kind;type:varchar(40);not null;index:idx_usage_records_user_kind_created,priority:2"`
	ResourceTag string     `gorm:"column:resource_tag"`
	Description string
	CreatedAt   time.Time `gorm:"index:idx_usage_records_user_kind_created,priority:3"`
}

func (Record) TableName() string { return "usage_records" }
