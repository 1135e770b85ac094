package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrNotFound - запись отсутствует.
	ErrNotFound = errors.New("record not found")

	// ErrStateConflict - условное обновление не прошло: состояние строки
	// изменилось между чтением и записью (проигрыш гонки).
	ErrStateConflict = errors.New("row state changed concurrently")
)

// IsNotFound покрывает и собственный sentinel, и sql.ErrNoRows из sqlx.Get.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
}

// IsConflict распознаёт конфликт записи на стороне Postgres: нарушение
// целостности (класс 23) или сбой сериализации (40001). Такие ошибки
// отдаются вызывающему как Conflict и не повторяются внутри ядра.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "23") || pqErr.Code == "40001"
	}
	return errors.Is(err, ErrStateConflict)
}
