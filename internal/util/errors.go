package util

import (
	"errors"
	"fmt"
)

// 错误分类，使用 errors.Is 判断
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("unauthorized")
	ErrTimeout    = errors.New("request timed out")
	ErrNetwork    = errors.New("network unreachable")
	ErrStore      = errors.New("store failure")
	ErrAborted    = errors.New("request aborted")
	ErrForbidden  = errors.New("permission denied")
)

var (
	ErrProgressNotFound = fmt.Errorf("%w: progress document", ErrNotFound)
	ErrChapterNotFound  = fmt.Errorf("%w: chapter progress", ErrNotFound)
	ErrUnitNotFound     = fmt.Errorf("%w: unit", ErrNotFound)
	ErrInvalidItemType  = fmt.Errorf("%w: itemType must be one of chapter, topic, subtopic, definition", ErrValidation)
)

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func StoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStore, op, err)
}
