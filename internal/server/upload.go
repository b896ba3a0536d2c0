package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var errNoRecording = errors.New("no recording in request body")

// receiveRecording stores the request payload in the uploads directory. It
// accepts a multipart form (first file part) or a raw octet-stream body.
func (s *Server) receiveRecording(w http.ResponseWriter, r *http.Request) (name, path string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", "", fmt.Errorf("parse multipart: %w", err)
		}
		defer r.MultipartForm.RemoveAll()
		fh := firstFile(r.MultipartForm)
		if fh == nil {
			return "", "", errNoRecording
		}
		src, err := fh.Open()
		if err != nil {
			return "", "", err
		}
		defer src.Close()
		path, err := s.saveUpload(fh.Filename, src)
		return fh.Filename, path, err
	}
	name = strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "upload.raw"
	}
	path, err = s.saveUpload(name, r.Body)
	if err != nil {
		return "", "", err
	}
	if info, statErr := os.Stat(path); statErr == nil && info.Size() == 0 {
		os.Remove(path)
		return "", "", errNoRecording
	}
	return name, path, nil
}

func (s *Server) saveUpload(filename string, src io.Reader) (string, error) {
	ext := filepath.Ext(filename)
	pattern := "upload-*"
	if ext != "" {
		pattern = fmt.Sprintf("upload-*%s", ext)
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(dest.Name())
		return "", err
	}
	if err := dest.Close(); err != nil {
		os.Remove(dest.Name())
		return "", err
	}
	return dest.Name(), nil
}

// firstFile prefers the "file" field and falls back to the first file part
// in field-name order.
func firstFile(form *multipart.Form) *multipart.FileHeader {
	if files := form.File["file"]; len(files) > 0 {
		return files[0]
	}
	keys := make([]string, 0, len(form.File))
	for k := range form.File {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(form.File[k]) > 0 {
			return form.File[k][0]
		}
	}
	return nil
}
