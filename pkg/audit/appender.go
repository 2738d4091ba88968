package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Appender - интерфейс для записи журнальных записей
type Appender interface {
	// Append - записать entry
	Append(ctx context.Context, entry *Entry) error

	// Close - закрыть appender
	Close() error
}

// ConsoleAppender - однострочный текстовый вывод (stderr по умолчанию)
type ConsoleAppender struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// NewConsoleAppender - создать console appender
func NewConsoleAppender(level Level) *ConsoleAppender {
	return &ConsoleAppender{out: os.Stderr, level: level}
}

// NewConsoleAppenderTo - console appender с произвольным writer (тесты)
func NewConsoleAppenderTo(out io.Writer, level Level) *ConsoleAppender {
	return &ConsoleAppender{out: out, level: level}
}

// Append - вывести entry одной строкой
func (ca *ConsoleAppender) Append(ctx context.Context, entry *Entry) error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	if _, err := fmt.Fprintln(ca.out, entry.FilterByLevel(ca.level).String()); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	return nil
}

// Close - ничего не делает (writer не принадлежит appender'у)
func (ca *ConsoleAppender) Close() error {
	return nil
}

// MultiAppender - запись в несколько appenders
type MultiAppender struct {
	appenders []Appender
}

// NewMultiAppender - создать multi appender
func NewMultiAppender(appenders ...Appender) *MultiAppender {
	return &MultiAppender{
		appenders: appenders,
	}
}

// Append - записать в все appenders
func (ma *MultiAppender) Append(ctx context.Context, entry *Entry) error {
	var firstErr error

	for _, appender := range ma.appenders {
		if err := appender.Append(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
			// Продолжаем записывать в остальные appenders
		}
	}

	return firstErr
}

// Close - закрыть все appenders
func (ma *MultiAppender) Close() error {
	var firstErr error

	for _, appender := range ma.appenders {
		if err := appender.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Add - добавить appender
func (ma *MultiAppender) Add(appender Appender) {
	ma.appenders = append(ma.appenders, appender)
}
