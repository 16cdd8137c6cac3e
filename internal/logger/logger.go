// Package logger — логирование с префиксом сервиса и асинхронной записью, чтобы запись логов
// не блокировала обработку запросов и таймеры сессий. Уровень задаётся LOG_LEVEL или SetLevel.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const asyncBufferSize = 4096

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

var (
	mu       sync.RWMutex
	prefix   string
	logLevel = levelInfo
	ch       chan string
	once     sync.Once
)

func parseLevel(s string) level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func initWorker() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		mu.Lock()
		logLevel = parseLevel(v)
		mu.Unlock()
	}
	ch = make(chan string, asyncBufferSize)
	go func() {
		for msg := range ch {
			log.Print(msg)
		}
	}()
}

func enabled(l level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= logLevel
}

func enqueue(l level, msg string) {
	once.Do(initWorker)
	if !enabled(l) {
		return
	}
	select {
	case ch <- msg:
	default:
		// буфер полон — лог теряется, вызывающий не ждёт
	}
}

// SetPrefix задаёт префикс для всех последующих логов (например "web").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel переопределяет уровень из конфигурации (debug, info, warn, error).
func SetLevel(s string) {
	once.Do(initWorker)
	mu.Lock()
	logLevel = parseLevel(s)
	mu.Unlock()
}

func tag() string {
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	enqueue(levelDebug, tag()+"DEBUG: "+fmt.Sprintf(format, v...))
}

func Info(v ...any) {
	enqueue(levelInfo, tag()+fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(levelInfo, tag()+fmt.Sprintf(format, v...))
}

// Warnf — для ситуаций, которые система исправила сама (например, очистка просроченного токена).
func Warnf(format string, v ...any) {
	enqueue(levelWarn, tag()+"WARN: "+fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(levelError, tag()+"ERROR: "+fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(levelError, tag()+"ERROR: "+fmt.Sprintf(format, v...))
}

// LogDuration логирует имя операции и время выполнения в миллисекундах.
// На уровне info пишутся только вызовы дольше 100ms, на debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if enabled(levelDebug) || elapsed >= 100*time.Millisecond {
		enqueue(levelInfo, fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration: defer logger.DeferLogDuration("op", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
