package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"approvalScope/internal/model"
)

// ownerLine is the JSONL layout: one owner result per line.
type ownerLine struct {
	ScanID    string `json:"scan_id"`
	ScannedAt string `json:"scanned_at"`
	model.OwnerResult
}

// JsonlStorage appends scan reports to a JSONL file.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutReport appends one line per owner, in owner address order.
func (s *JsonlStorage) PutReport(_ context.Context, report Report) error {
	if len(report.Result) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	scannedAt := report.ScannedAt.UTC().Format(time.RFC3339Nano)
	writer := bufio.NewWriter(file)
	for _, owner := range report.Result.Owners() {
		line, err := json.Marshal(ownerLine{
			ScanID:      report.ScanID,
			ScannedAt:   scannedAt,
			OwnerResult: report.Result[owner],
		})
		if err != nil {
			return fmt.Errorf("marshal owner result: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write owner result: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
