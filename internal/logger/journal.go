// ==============================
// File: internal/logger/journal.go
// ==============================
package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TradeRecord — одна строка журнала сделок.
type TradeRecord struct {
	Time      time.Time
	DEX       string
	Operation string
	PoolID    string
	CoinIn    string
	CoinOut   string
	AmountIn  uint64
	Digest    string
	Success   bool
}

// Journal — потокобезопасный CSV-журнал сделок с периодическим сбросом
// буфера на диск. Файл открывается в режиме дозаписи; заголовок пишется
// только в пустой файл.
type Journal struct {
	mu     sync.Mutex
	writer *csv.Writer
	file   *os.File
	ticker *time.Ticker
	done   chan struct{}
	logger *zap.Logger

	writtenRecords uint64
	flushCount     uint64
}

var journalHeader = []string{
	"timestamp", "dex", "operation", "pool", "coin_in", "coin_out", "amount_in", "digest", "success",
}

// NewJournal открывает журнал и запускает периодический сброс.
func NewJournal(filePath string, flushInterval time.Duration, logger *zap.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, fmt.Errorf("journal: stat file: %w", err)
	}

	j := &Journal{
		writer: csv.NewWriter(file),
		file:   file,
		ticker: time.NewTicker(flushInterval),
		done:   make(chan struct{}),
		logger: logger.Named("journal"),
	}

	if stat.Size() == 0 {
		if err := j.writer.Write(journalHeader); err != nil {
			file.Close() //nolint:errcheck
			return nil, fmt.Errorf("journal: write header: %w", err)
		}
		j.writer.Flush()
	}

	go j.periodicFlush()
	return j, nil
}

// Record дописывает строку. Заголовок в счётчик записей не входит.
func (j *Journal) Record(rec TradeRecord) error {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	row := []string{
		ts.UTC().Format(time.RFC3339),
		rec.DEX,
		rec.Operation,
		rec.PoolID,
		rec.CoinIn,
		rec.CoinOut,
		strconv.FormatUint(rec.AmountIn, 10),
		rec.Digest,
		strconv.FormatBool(rec.Success),
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Write(row); err != nil {
		return fmt.Errorf("journal: write record: %w", err)
	}
	j.writtenRecords++
	return nil
}

// Flush сбрасывает буфер на диск.
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal) flushLocked() error {
	j.writer.Flush()
	if err := j.writer.Error(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	j.flushCount++
	return nil
}

func (j *Journal) periodicFlush() {
	for {
		select {
		case <-j.ticker.C:
			if err := j.Flush(); err != nil {
				j.logger.Warn("Периодический сброс журнала не удался", zap.Error(err))
			}
		case <-j.done:
			return
		}
	}
}

// Close останавливает периодический сброс и закрывает файл,
// предварительно сбросив остаток буфера.
func (j *Journal) Close() error {
	j.ticker.Stop()
	close(j.done)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.flushLocked(); err != nil {
		j.file.Close() //nolint:errcheck
		return err
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("journal: close file: %w", err)
	}
	j.logger.Debug("Журнал закрыт",
		zap.Uint64("records", j.writtenRecords),
		zap.Uint64("flushes", j.flushCount))
	return nil
}

// Stats возвращает количество записанных строк и сбросов.
func (j *Journal) Stats() (records, flushes uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writtenRecords, j.flushCount
}
