// Package classify selects a processing strategy for an inbound document
// from its declared media type and filename. Classification is total: every
// input maps to exactly one strategy, with plain text as the universal
// fallback, so an unrecognized upload is degraded rather than rejected.
package classify

import (
	"path/filepath"
	"strings"
)

// Strategy is the processing route for a document.
type Strategy string

const (
	// StrategyTabular routes delimited/spreadsheet data through the table
	// parser and row chunker.
	StrategyTabular Strategy = "tabular"
	// StrategyNativeDocument routes page-image formats (PDF, photos) to the
	// extraction service as an uploaded file.
	StrategyNativeDocument Strategy = "native-document"
	// StrategyPlainText reads the bytes permissively and treats them as
	// unstructured text.
	StrategyPlainText Strategy = "plain-text"
)

var tabularExts = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".xlsx": true,
	".xls":  true,
}

var nativeExts = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// Detect maps a declared media type and filename to a Strategy.
// The media type wins over the extension when both are informative.
func Detect(mediaType, filename string) Strategy {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case strings.Contains(mt, "csv"),
		strings.Contains(mt, "tab-separated"),
		strings.Contains(mt, "sheet"),
		strings.Contains(mt, "excel"):
		return StrategyTabular
	case strings.Contains(mt, "pdf"), strings.HasPrefix(mt, "image/"):
		return StrategyNativeDocument
	}

	switch {
	case tabularExts[ext]:
		return StrategyTabular
	case nativeExts[ext]:
		return StrategyNativeDocument
	}

	return StrategyPlainText
}
