package worker

import (
	"errors"
	"fmt"
)

// PermanentError означает, что повторная обработка задания бессмысленна:
// задание подтверждается и отбрасывается. Все прочие ошибки считаются
// временными и ведут к повторной доставке.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent помечает ошибку как неустранимую
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf — вариант Permanent с форматированием
func Permanentf(format string, args ...interface{}) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent сообщает, помечена ли ошибка как неустранимая
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
