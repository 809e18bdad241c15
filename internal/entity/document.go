package entity

import (
	"path/filepath"

	"github.com/joseph-ayodele/committee-extract/constants"
)

// RawDocument is an uploaded file as handed to the pipeline. The pipeline never mutates Data.
type RawDocument struct {
	FileName string
	MimeType string
	Data     []byte
}

// Format resolves PDF or IMAGE from the declared MIME type, then the file extension.
func (d *RawDocument) Format() string {
	if f := constants.MapMimeToFormat(d.MimeType); f != "" {
		return f
	}
	return constants.MapExtToFormat(filepath.Ext(d.FileName))
}
