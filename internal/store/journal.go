package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"binary-trader-go/order"
)

// Journal 把记录同时追加到 CSV（固定表头）与 JSONL 文件，任一路径为空则跳过。
type Journal struct {
	mu   sync.Mutex
	csvF *os.File
	csvW *csv.Writer
	jsF  *os.File
}

// OpenJournal 以追加模式打开文件；新建的 CSV 先写表头。
func OpenJournal(csvPath, jsonlPath string) (*Journal, error) {
	j := &Journal{}
	if csvPath != "" {
		f, fresh, err := openAppend(csvPath)
		if err != nil {
			return nil, err
		}
		j.csvF = f
		j.csvW = csv.NewWriter(f)
		if fresh {
			if err := j.csvW.Write(Columns); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("write csv header: %w", err)
			}
			j.csvW.Flush()
		}
	}
	if jsonlPath != "" {
		f, _, err := openAppend(jsonlPath)
		if err != nil {
			_ = j.Close()
			return nil, err
		}
		j.jsF = f
	}
	return j, nil
}

func openAppend(path string) (*os.File, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, err
	}
	return f, st.Size() == 0, nil
}

// Persist 每条记录写完立即 flush，进程崩溃最多丢失正在写的一行。
func (j *Journal) Persist(_ context.Context, rec order.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.csvW != nil {
		if err := j.csvW.Write(row(rec)); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		j.csvW.Flush()
		if err := j.csvW.Error(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
	}
	if j.jsF != nil {
		line, err := json.Marshal(rec.Fields())
		if err != nil {
			return fmt.Errorf("marshal jsonl: %w", err)
		}
		line = append(line, '\n')
		if _, err := j.jsF.Write(line); err != nil {
			return fmt.Errorf("write jsonl: %w", err)
		}
	}
	return nil
}

// Close 关闭文件
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var firstErr error
	if j.csvW != nil {
		j.csvW.Flush()
	}
	for _, f := range []*os.File{j.csvF, j.jsF} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.csvF, j.csvW, j.jsF = nil, nil, nil
	return firstErr
}
