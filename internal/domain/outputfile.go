package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutputFile — один сохранённый файл результата конвертации.
//
// Создаётся только materializer'ом и только после того, как
// конвертационный сервис отчитался об успешном формате.
// Неизменяем после создания. Для пары (order, format) существует
// не более одного OutputFile — материализация идемпотентна по формату.
type OutputFile struct {
	// ID — внутренний идентификатор записи.
	ID uuid.UUID `json:"id"`

	// OrderID — заказ, которому принадлежит файл.
	OrderID uuid.UUID `json:"order_id"`

	// Format — идентификатор формата (fgdb, shapefile, spatialite, gpkg, ...).
	Format string `json:"format"`

	// MimeType — MIME-тип сохранённого файла.
	MimeType string `json:"mime_type"`

	// FileExtension — расширение файла без точки.
	FileExtension string `json:"file_extension"`

	// StoragePath — путь в приватном хранилище. Наружу не отдаётся.
	StoragePath string `json:"-"`

	// PublicIdentifier — публичный идентификатор для скачивания.
	// Отдельный от StoragePath и от ID, чтобы пути и последовательные
	// идентификаторы нельзя было угадать.
	PublicIdentifier uuid.UUID `json:"public_identifier"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// NewOutputFile создаёт OutputFile для заказа и формата.
// StoragePath заполняется хранилищем после записи байтов.
func NewOutputFile(orderID uuid.UUID, format string) *OutputFile {
	spec := FormatByID(format)
	return &OutputFile{
		ID:               uuid.New(),
		OrderID:          orderID,
		Format:           format,
		MimeType:         spec.MimeType,
		FileExtension:    spec.FileExtension,
		PublicIdentifier: uuid.New(),
		CreatedAt:        time.Now(),
	}
}

// FileName возвращает имя файла для хранилища: "<public_identifier>.<ext>".
func (f *OutputFile) FileName() string {
	return f.PublicIdentifier.String() + "." + f.FileExtension
}
