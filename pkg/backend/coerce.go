package backend

import (
	"fmt"
	"math"
	"time"
)

// TypeTag - тег типа значения в скалярном домене контракта
type TypeTag string

const (
	TypeNull      TypeTag = "null"
	TypeBool      TypeTag = "bool"
	TypeInt       TypeTag = "int"
	TypeFloat     TypeTag = "float"
	TypeText      TypeTag = "text"
	TypeTimestamp TypeTag = "timestamp"
)

// CoercionError - ошибка приведения значения к скалярному домену
type CoercionError struct {
	GoType string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("unsupported value type %s", e.GoType)
}

// Coerce приводит произвольное значение к закрытому скалярному домену
// контракта: nil, bool, int64, float64, string. Приоритет распознавания:
// null, bool, целые, дробные, текст, временная метка. Bool проверяется
// раньше целых, чтобы backend'ы с числовым представлением булевых не
// теряли тип. time.Time всегда рендерится строкой RFC 3339 в UTC.
func Coerce(v any) (any, TypeTag, error) {
	switch t := v.(type) {
	case nil:
		return nil, TypeNull, nil

	case bool:
		return t, TypeBool, nil

	case int:
		return int64(t), TypeInt, nil
	case int8:
		return int64(t), TypeInt, nil
	case int16:
		return int64(t), TypeInt, nil
	case int32:
		return int64(t), TypeInt, nil
	case int64:
		return t, TypeInt, nil
	case uint:
		return int64(t), TypeInt, nil
	case uint8:
		return int64(t), TypeInt, nil
	case uint16:
		return int64(t), TypeInt, nil
	case uint32:
		return int64(t), TypeInt, nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, "", fmt.Errorf("uint64 value %d overflows int64", t)
		}
		return int64(t), TypeInt, nil

	case float32:
		return float64(t), TypeFloat, nil
	case float64:
		return t, TypeFloat, nil

	case string:
		return t, TypeText, nil
	case []byte:
		return string(t), TypeText, nil

	case time.Time:
		return FormatTimestamp(t), TypeTimestamp, nil
	case *time.Time:
		if t == nil {
			return nil, TypeNull, nil
		}
		return FormatTimestamp(*t), TypeTimestamp, nil
	}

	return nil, "", &CoercionError{GoType: fmt.Sprintf("%T", v)}
}

// FormatTimestamp рендерит временную метку в каноническом виде домена:
// RFC 3339 в UTC с микросекундной точностью
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.999999Z07:00")
}

// CoerceRowValue нормализует значение, полученное от драйвера, в скалярный
// домен. Отличается от Coerce только тем, что неизвестный тип рендерится
// текстом через fmt, а не отклоняется: строка чтения не должна падать
// из-за экзотического типа одной колонки.
func CoerceRowValue(v any) (any, TypeTag) {
	coerced, tag, err := Coerce(v)
	if err != nil {
		return fmt.Sprintf("%v", v), TypeText
	}
	return coerced, tag
}
