package sync

import "errors"

var (
	ErrBatchTooLarge     = errors.New("batch exceeds maximum size")
	ErrInvalidRequest    = errors.New("invalid sync request")
	ErrInvalidResolution = errors.New("invalid conflict resolution")
	ErrUnknownEntity     = errors.New("entity is not synchronizable")

	// ошибки хранилища
	ErrRowNotFound    = errors.New("row not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrRecordRejected = errors.New("record rejected")
)

// isRecordError сообщает, что ошибка касается одной записи и не должна прерывать пакет
func isRecordError(err error) bool {
	return errors.Is(err, ErrUnknownEntity) ||
		errors.Is(err, ErrRecordRejected) ||
		errors.Is(err, ErrRowNotFound) ||
		errors.Is(err, ErrInvalidRequest)
}
