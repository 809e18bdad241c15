package extract

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFInfo is the structural summary of a PDF used to steer the cascade.
type PDFInfo struct {
	Pages      int
	ImagePages int
}

// Scanned reports whether every page carries an image, the usual shape of a scanned letter.
func (i PDFInfo) Scanned() bool {
	return i.Pages > 0 && i.ImagePages == i.Pages
}

// ProbePDF reads page count and image usage with pdfcpu in relaxed validation mode.
func ProbePDF(data []byte) (info PDFInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return PDFInfo{}, fmt.Errorf("pdfcpu read: %w", err)
	}

	info.Pages = ctx.PageCount
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				info.ImagePages++
			}
		}
	}
	return info, nil
}
