package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrStorageUnavailable marks failures of the persistence layer itself.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrInvalidTransition is returned for status changes outside the lifecycle table.
var ErrInvalidTransition = errors.New("invalid status transition")

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
