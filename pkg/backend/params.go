package backend

import (
	"fmt"
	"sort"
	"strings"
)

// ParamStyle - стиль параметров запроса
type ParamStyle string

const (
	// StyleNone - запрос без параметров
	StyleNone ParamStyle = "none"
	// StyleNamed - именованные параметры вида @name
	StyleNamed ParamStyle = "named"
	// StylePositional - порядковые параметры вида ?
	StylePositional ParamStyle = "positional"
)

// Params - параметры запроса: tagged variant из двух взаимоисключающих
// форм (именованная map или порядковый список). Нулевое значение -
// запрос без параметров.
type Params struct {
	style      ParamStyle
	named      map[string]any
	positional []any
}

// Named создает именованный набор параметров
func Named(values map[string]any) Params {
	return Params{style: StyleNamed, named: values}
}

// Positional создает порядковый набор параметров
func Positional(values ...any) Params {
	return Params{style: StylePositional, positional: values}
}

// Style возвращает стиль набора параметров
func (p Params) Style() ParamStyle {
	if p.style == "" {
		return StyleNone
	}
	return p.style
}

// IsEmpty сообщает, что набор не содержит значений
func (p Params) IsEmpty() bool {
	return len(p.named) == 0 && len(p.positional) == 0
}

// Query - неизменяемый текст запроса плюс объявленный набор параметров
type Query struct {
	Text   string
	Params Params
}

// NamedQuery создает запрос с именованными параметрами @name
func NamedQuery(text string, values map[string]any) Query {
	return Query{Text: text, Params: Named(values)}
}

// PositionalQuery создает запрос с порядковыми параметрами ?
// Без аргументов - запрос без параметров.
func PositionalQuery(text string, values ...any) Query {
	if len(values) == 0 {
		return Query{Text: text}
	}
	return Query{Text: text, Params: Positional(values...)}
}

// Param - один оттранслированный аргумент запроса
type Param struct {
	// Position - позиция аргумента, с 1
	Position int
	// Name - исходное имя для именованного стиля, иначе ""
	Name string
	// Value - значение, приведенное к скалярному домену
	Value any
	// Type - тег типа приведенного значения
	Type TypeTag
}

// Args возвращает значения параметров в порядке позиций
// (форма, которую принимают драйверы)
func Args(params []Param) []any {
	out := make([]any, len(params))
	for i, p := range params {
		out[i] = p.Value
	}
	return out
}

// TranslationError - ошибка трансляции шаблона запроса
type TranslationError struct {
	Reason string
}

func (e *TranslationError) Error() string {
	return "translation: " + e.Reason
}

func translationErr(format string, args ...any) error {
	return &TranslationError{Reason: fmt.Sprintf(format, args...)}
}

// Translate транслирует шаблон запроса в нативный SQL backend'а.
// Одна точка входа с двумя явными ветками по стилю параметров:
//   - именованная: токены @name вне строковых литералов получают позиции
//     в порядке первого появления, повторное имя использует ту же позицию;
//   - порядковая: маркеры ? вне литералов получают последовательные позиции.
//
// Несовпадение набора имен или количества значений - ошибка трансляции.
// Каждое значение проходит приведение типов (см. Coerce).
func Translate(text string, params Params, marker MarkerFunc) (string, []Param, error) {
	if marker == nil {
		return "", nil, translationErr("marker function is nil")
	}

	switch params.Style() {
	case StyleNone:
		// Шаблон без параметров не должен содержать маркеров
		if n := countMarkers(text); n > 0 {
			return "", nil, translationErr("template references %d parameter(s) but none were provided", n)
		}
		return text, nil, nil

	case StyleNamed:
		return translateNamed(text, params.named, marker)

	case StylePositional:
		return translatePositional(text, params.positional, marker)

	default:
		return "", nil, translationErr("unknown parameter style: %s", params.Style())
	}
}

// translateNamed - ветка именованных параметров
func translateNamed(text string, values map[string]any, marker MarkerFunc) (string, []Param, error) {
	var (
		sb        strings.Builder
		scan      = newLiteralScanner()
		positions = make(map[string]int) // имя -> позиция (с 1)
		ordered   []Param
		missing   []string
	)
	sb.Grow(len(text) + 16)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if scan.inLiteral() {
			scan.step(ch)
			sb.WriteRune(ch)
			continue
		}

		if ch != '@' {
			scan.step(ch)
			sb.WriteRune(ch)
			continue
		}

		// @@ - экранированный литеральный @
		if i+1 < len(runes) && runes[i+1] == '@' {
			sb.WriteRune('@')
			i++
			continue
		}

		name, width := scanIdentifier(runes[i+1:])
		if width == 0 {
			// одиночный @ без имени остается как есть
			sb.WriteRune(ch)
			continue
		}
		i += width

		pos, seen := positions[name]
		if !seen {
			value, ok := values[name]
			if !ok {
				if !containsString(missing, name) {
					missing = append(missing, name)
				}
				continue
			}
			coerced, tag, err := Coerce(value)
			if err != nil {
				return "", nil, translationErr("parameter @%s: %v", name, err)
			}
			pos = len(ordered) + 1
			positions[name] = pos
			ordered = append(ordered, Param{Position: pos, Name: name, Value: coerced, Type: tag})
		}
		sb.WriteString(marker(pos))
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", nil, translationErr("template references undeclared parameter(s): %s", strings.Join(missing, ", "))
	}

	// Значения, которые шаблон не использует, указывают на опечатку
	if len(positions) != len(values) {
		var unused []string
		for name := range values {
			if _, ok := positions[name]; !ok {
				unused = append(unused, name)
			}
		}
		sort.Strings(unused)
		return "", nil, translationErr("parameter(s) not referenced by template: %s", strings.Join(unused, ", "))
	}

	return sb.String(), ordered, nil
}

// translatePositional - ветка порядковых параметров
func translatePositional(text string, values []any, marker MarkerFunc) (string, []Param, error) {
	var (
		sb   strings.Builder
		scan = newLiteralScanner()
		pos  int
	)
	sb.Grow(len(text) + 8)

	ordered := make([]Param, 0, len(values))
	for _, ch := range text {
		if !scan.inLiteral() && ch == '?' {
			pos++
			if pos <= len(values) {
				coerced, tag, err := Coerce(values[pos-1])
				if err != nil {
					return "", nil, translationErr("parameter #%d: %v", pos, err)
				}
				ordered = append(ordered, Param{Position: pos, Value: coerced, Type: tag})
			}
			sb.WriteString(marker(pos))
			continue
		}
		scan.step(ch)
		sb.WriteRune(ch)
	}

	if pos != len(values) {
		return "", nil, translationErr("template has %d marker(s) but %d value(s) were provided", pos, len(values))
	}

	return sb.String(), ordered, nil
}

// countMarkers считает маркеры обоих стилей вне литералов
func countMarkers(text string) int {
	scan := newLiteralScanner()
	n := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if scan.inLiteral() {
			scan.step(ch)
			continue
		}
		switch ch {
		case '?':
			n++
		case '@':
			if i+1 < len(runes) && runes[i+1] == '@' {
				i++
				continue
			}
			if _, width := scanIdentifier(runes[i+1:]); width > 0 {
				n++
				i += width
			}
		default:
			scan.step(ch)
		}
	}
	return n
}

// literalScanner отслеживает строковые литералы ('...'), квотированные
// идентификаторы ("...") и backtick-идентификаторы (`...`), чтобы
// трансляция не трогала их содержимое. Удвоенная кавычка внутри литерала
// ('') дает выход и немедленный вход обратно, что для сканера эквивалентно.
type literalScanner struct {
	quote rune // 0 = вне литерала
}

func newLiteralScanner() *literalScanner {
	return &literalScanner{}
}

func (s *literalScanner) inLiteral() bool {
	return s.quote != 0
}

func (s *literalScanner) step(ch rune) {
	switch {
	case s.quote == 0:
		if ch == '\'' || ch == '"' || ch == '`' {
			s.quote = ch
		}
	case ch == s.quote:
		s.quote = 0
	}
}

// scanIdentifier читает идентификатор [A-Za-z_][A-Za-z0-9_]* из начала runes.
// Возвращает имя и количество прочитанных рун (0 = не идентификатор).
func scanIdentifier(runes []rune) (string, int) {
	if len(runes) == 0 || !isIdentStart(runes[0]) {
		return "", 0
	}
	i := 1
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	return string(runes[:i]), i
}

func isIdentStart(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || (ch >= '0' && ch <= '9')
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
