package domain

import "sort"

// FormatSpec — описание одного выходного GIS-формата.
type FormatSpec struct {
	// ID — идентификатор формата в API конвертационного сервиса.
	ID string

	// Name — человекочитаемое имя.
	Name string

	// MimeType — MIME-тип архива результата.
	MimeType string

	// FileExtension — расширение файла результата без точки.
	FileExtension string
}

// Результаты отдаются zip-архивами независимо от формата.
var defaultFormat = FormatSpec{
	MimeType:      "application/zip",
	FileExtension: "zip",
}

// formats — каталог поддерживаемых выходных форматов.
var formats = map[string]FormatSpec{
	"fgdb":       {ID: "fgdb", Name: "Esri File Geodatabase", MimeType: "application/zip", FileExtension: "zip"},
	"shapefile":  {ID: "shapefile", Name: "Esri Shapefile", MimeType: "application/zip", FileExtension: "zip"},
	"gpkg":       {ID: "gpkg", Name: "GeoPackage", MimeType: "application/zip", FileExtension: "zip"},
	"spatialite": {ID: "spatialite", Name: "SpatiaLite", MimeType: "application/zip", FileExtension: "zip"},
	"garmin":     {ID: "garmin", Name: "Garmin navigation & map data", MimeType: "application/zip", FileExtension: "zip"},
	"pbf":        {ID: "pbf", Name: "OSM Protocolbuffer Binary Format", MimeType: "application/zip", FileExtension: "zip"},
}

// FormatByID возвращает описание формата по идентификатору.
// Для неизвестного формата возвращает описание по умолчанию с этим же ID.
func FormatByID(id string) FormatSpec {
	if spec, ok := formats[id]; ok {
		return spec
	}
	spec := defaultFormat
	spec.ID = id
	spec.Name = id
	return spec
}

// KnownFormat проверяет, есть ли формат в каталоге.
func KnownFormat(id string) bool {
	_, ok := formats[id]
	return ok
}

// FormatIDs возвращает отсортированный список идентификаторов каталога.
func FormatIDs() []string {
	ids := make([]string, 0, len(formats))
	for id := range formats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
