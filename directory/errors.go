package directory

import (
	"errors"
)

var (
	ErrGroupNotFound   = errors.New("group not found")
	ErrRuleNotFound    = errors.New("rule not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrNodeNotFound    = errors.New("hierarchy node not found")
	ErrNotDynamicGroup = errors.New("group membership is not dynamic")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrDuplicate       = errors.New("already exists")
)
