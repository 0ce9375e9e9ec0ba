// Package storage — приватное файловое хранилище результатов.
//
// Файлы лежат в плоском каталоге под управляемым корнем и именуются
// публичным идентификатором OutputFile — наружу никогда не отдаются
// реальные пути или последовательные id.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStorage — хранилище результатов на локальной файловой системе.
type FileStorage struct {
	root string
}

// NewFileStorage создаёт хранилище с корнем root (каталог создаётся).
func NewFileStorage(root string) (*FileStorage, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStorage{root: root}, nil
}

// Save записывает данные под именем fileName и возвращает storage path.
// Запись атомарна: сначала во временный файл, затем rename.
func (s *FileStorage) Save(fileName string, data []byte) (string, error) {
	path := filepath.Join(s.root, fileName)

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return path, nil
}

// Open открывает сохранённый файл по storage path.
func (s *FileStorage) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return f, nil
}
