package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Class - класс ошибки контракта выполнения
type Class string

const (
	// ClassConnectivity - backend недоступен (сеть, аутентификация, пул).
	// Фатально для всего сервиса до восстановления соединения.
	ClassConnectivity Class = "connectivity"

	// ClassTranslation - некорректный шаблон или набор параметров.
	// Ошибка вызывающего кода, запрос не отправлялся backend'у.
	ClassTranslation Class = "translation"

	// ClassConstraint - нарушение ограничения схемы (PK, NOT NULL, тип)
	ClassConstraint Class = "constraint"

	// ClassNotFound - адресуемая сущность не существует
	ClassNotFound Class = "not_found"

	// ClassTransient - временный сбой, безопасный для повтора
	// (serialization abort, deadlock)
	ClassTransient Class = "transient"

	// ClassInternal - прочие ошибки backend'а
	ClassInternal Class = "internal"
)

// Error - классифицированная ошибка контракта. Любая ошибка драйвера
// оборачивается в Error до выхода за границу контракта.
type Error struct {
	// Class - класс ошибки
	Class Class
	// Backend - тип backend'а, вернувшего ошибку
	Backend string
	// Op - операция контракта: "query", "dml", "ddl", "txn", "new_order", ...
	Op string
	// Err - исходная ошибка
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s [%s]: %v", e.Backend, e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError оборачивает ошибку драйвера в классифицированную ошибку
// контракта. Уже классифицированная ошибка проходит без изменений.
func WrapError(class Class, backendType, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Class: class, Backend: backendType, Op: op, Err: err}
}

// ClassOf возвращает класс ошибки, ClassInternal для неклассифицированных
func ClassOf(err error) Class {
	var be *Error
	if errors.As(err, &be) {
		return be.Class
	}
	var te *TranslationError
	if errors.As(err, &te) {
		return ClassTranslation
	}
	var ce *CoercionError
	if errors.As(err, &ce) {
		return ClassTranslation
	}
	return ClassInternal
}

// IsConnectivity сообщает, что ошибка означает недоступность backend'а
func IsConnectivity(err error) bool {
	return ClassOf(err) == ClassConnectivity
}

// IsTranslation сообщает об ошибке трансляции запроса
func IsTranslation(err error) bool {
	return ClassOf(err) == ClassTranslation
}

// IsConstraint сообщает о нарушении ограничения схемы
func IsConstraint(err error) bool {
	return ClassOf(err) == ClassConstraint
}

// IsNotFound сообщает об отсутствии адресуемой сущности
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}

// IsTransient сообщает, что повтор операции безопасен и осмыслен
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// connectivitySubstrings - сигнатуры сетевых сбоев, общие для драйверов.
// Типизированные проверки каждого драйвера идут первыми, этот список -
// последняя линия классификации.
var connectivitySubstrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"unexpected EOF",
	"bad connection",
	"closed pool",
	"connection closed",
}

// ClassifyFallback классифицирует ошибку по общим признакам, когда
// типизированная проверка драйвера не дала результата
func ClassifyFallback(err error) Class {
	if err == nil {
		return ClassInternal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range connectivitySubstrings {
		if strings.Contains(msg, strings.ToLower(sig)) {
			return ClassConnectivity
		}
	}
	return ClassInternal
}
