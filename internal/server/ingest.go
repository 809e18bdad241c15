package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/joseph-ayodele/committee-extract/constants"
	"github.com/joseph-ayodele/committee-extract/internal/common"
	"github.com/joseph-ayodele/committee-extract/internal/entity"
)

// multipart field carrying the uploaded documents. Unsupported types are not rejected here;
// they become error records like any other per-document failure.
const filesField = "files"

// handleSubmitBatch accepts multipart uploads under "files" and answers 200 once every record
// is terminal. With ?async=true it answers 202 with the pending records instead.
func (s *HTTPServer) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "expected multipart/form-data with "+filesField)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	docs, err := readUploads(r.MultipartForm.File[filesField], s.maxUploadBytes)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	background, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	wait := !background

	res, err := s.svc.Submit(r.Context(), docs, wait)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	status := http.StatusAccepted
	if wait {
		status = http.StatusOK
	}
	s.respondJSON(w, status, res)
}

func readUploads(files []*multipart.FileHeader, maxBytes int64) ([]*entity.RawDocument, error) {
	if len(files) == 0 {
		return nil, common.NewAppError("VALIDATION_ERROR", "no files uploaded", common.ErrValidation)
	}
	v := common.NewValidator()
	docs := make([]*entity.RawDocument, 0, len(files))
	for i, fh := range files {
		mimeType := fh.Header.Get("Content-Type")
		if constants.MapMimeToFormat(mimeType) == "" {
			mimeType = constants.MimeForPath(fh.Filename)
		}
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		field := fmt.Sprintf("%s[%d]", filesField, i)
		v.Field(field+".name", fh.Filename, common.Required).
			Field(field+".data", data, common.MaxBytes(maxBytes))
		docs = append(docs, &entity.RawDocument{FileName: fh.Filename, MimeType: mimeType, Data: data})
	}
	if err := v.Error(); err != nil {
		return nil, err
	}
	return docs, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
