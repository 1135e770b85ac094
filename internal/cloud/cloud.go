// Package cloud - хранилище файлов заказов. Ядро работает только с
// непрозрачными ссылками: загрузка, выгрузка и удаление по ключу.
package cloud

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Папки хранилища
const (
	AttachFolder   = "attach"   // файлы описаний и результатов заказа
	SupplierFolder = "supplier" // файлы продавцов
)

var ErrFileNotFound = errors.New("file not found")

type FileStore interface {
	// Upload сохраняет данные и возвращает ссылку на файл.
	Upload(name string, data []byte, folder string) (string, error)
	Download(ref string) ([]byte, error)
	// Delete по устаревшим файлам вызывается "по возможности":
	// вызывающий вправе игнорировать ошибку.
	Delete(ref string) error
}

// DiskStore хранит файлы на локальном диске под случайными ключами.
// Исходное имя файла сохраняется только как расширение ключа.
type DiskStore struct {
	Root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{Root: root}, nil
}

func (s *DiskStore) Upload(name string, data []byte, folder string) (string, error) {
	dir := filepath.Join(s.Root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	key := uuid.NewString() + filepath.Ext(name)
	if err := os.WriteFile(filepath.Join(dir, key), data, 0o644); err != nil {
		return "", err
	}
	return filepath.Join(folder, key), nil
}

func (s *DiskStore) Download(ref string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrFileNotFound
	}
	return data, err
}

func (s *DiskStore) Delete(ref string) error {
	err := os.Remove(filepath.Join(s.Root, ref))
	if errors.Is(err, os.ErrNotExist) {
		return ErrFileNotFound
	}
	return err
}
