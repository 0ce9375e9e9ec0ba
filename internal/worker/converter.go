package worker

import (
	"context"
	"fmt"
)

// Request — задание на конвертацию экстента в один формат.
type Request struct {
	// JobID — идентификатор job (для имён выходных файлов).
	JobID string

	// Format — идентификатор целевого формата.
	Format string

	// Bounding box экстента (используется, если Polyfile пуст).
	West, South, East, North float64

	// Polyfile — содержимое polyfile для произвольных полигонов.
	Polyfile string

	// WorkDir — каталог для промежуточных и выходных файлов.
	WorkDir string
}

// Result — результат конвертации одного формата.
type Result struct {
	// Path — путь к выходному файлу.
	Path string

	// SizeBytes — размер выходного файла до упаковки.
	SizeBytes int64
}

// Converter — интерфейс для конвертации в конкретный формат.
//
// Реализация по умолчанию — CommandConverter, оборачивающий внешние
// GIS-инструменты (ogr2ogr, osmconvert, mkgmap).
type Converter interface {
	Convert(ctx context.Context, req *Request) (*Result, error)
}

// Registry — реестр конвертеров по идентификатору формата.
type Registry struct {
	converters map[string]Converter
}

// NewRegistry создаёт реестр с конвертерами по умолчанию.
//
// Все векторные форматы идут через ogr2ogr, pbf вырезается osmconvert'ом,
// garmin собирается mkgmap'ом.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[string]Converter)}

	r.Register("pbf", NewCommandConverter("pbf", "osmconvert",
		"planet.pbf", "-b={west},{south},{east},{north}", "-o={out}"))

	for format, driver := range map[string]string{
		"fgdb":       "OpenFileGDB",
		"shapefile":  "ESRI Shapefile",
		"gpkg":       "GPKG",
		"spatialite": "SQLite",
	} {
		r.Register(format, NewCommandConverter(format, "ogr2ogr",
			"-f", driver, "{out}", "{src}",
			"-spat", "{west}", "{south}", "{east}", "{north}"))
	}

	r.Register("garmin", NewCommandConverter("garmin", "mkgmap",
		"--output-dir={out}", "{src}"))

	return r
}

// Register добавляет конвертер для формата.
func (r *Registry) Register(format string, converter Converter) {
	r.converters[format] = converter
}

// Get возвращает конвертер для формата.
func (r *Registry) Get(format string) (Converter, error) {
	converter, ok := r.converters[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return converter, nil
}

// Formats возвращает идентификаторы зарегистрированных форматов.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.converters))
	for f := range r.converters {
		formats = append(formats, f)
	}
	return formats
}
