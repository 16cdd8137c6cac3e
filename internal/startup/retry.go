package startup

import (
	"os"
	"time"

	"github.com/careerpath/internal/logger"
)

const maxBackoff = 30 * time.Second

// withRetry повторяет attempt с удваивающейся паузой (2s..30s), пока не истечёт maxWait.
// Сервис без хранилища учётных данных бесполезен, поэтому после maxWait процесс завершается.
func withRetry(what string, maxWait time.Duration, attempt func() error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		err := attempt()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s (gave up after %v): %v", what, maxWait, err)
			os.Exit(1)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
