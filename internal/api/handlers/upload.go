package handlers

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
)

// MaxZipStatements caps how many PDFs one zip upload may queue.
const MaxZipStatements = 20

type uploadedFile struct {
	Name string
	Data []byte
}

type queuedTask struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
	Name   string `json:"name"`
}

// readUploadPart reads the "statement" multipart part.
func readUploadPart(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return "", nil, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return "", nil, false
	}

	file, header, err := r.FormFile("statement")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "statement file is required")
		return "", nil, false
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read statement file")
		return "", nil, false
	}

	name := filepath.Base(header.Filename)
	if name == "." || name == "/" {
		name = "statement.pdf"
	}
	return name, buf.Bytes(), true
}

// readStatementFile reads the "statement" multipart part and checks it is a PDF.
func readStatementFile(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	name, data, ok := readUploadPart(w, r)
	if !ok {
		return "", nil, false
	}
	if http.DetectContentType(data) != "application/pdf" {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "statement must be a PDF")
		return "", nil, false
	}
	return name, data, true
}

// extractZipStatements returns the PDFs inside a zip archive in archive order.
// Directories, macOS metadata and non-PDF entries are ignored.
func extractZipStatements(data []byte) ([]uploadedFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.New("invalid zip archive")
	}

	var files []uploadedFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if !strings.EqualFold(path.Ext(f.Name), ".pdf") {
			continue
		}
		if len(files) == MaxZipStatements {
			return nil, fmt.Errorf("zip holds more than %d statements", MaxZipStatements)
		}

		content, err := readZipEntry(f)
		if err != nil {
			return nil, err
		}
		if http.DetectContentType(content) != "application/pdf" {
			continue
		}
		files = append(files, uploadedFile{Name: path.Base(f.Name), Data: content})
	}

	if len(files) == 0 {
		return nil, errors.New("zip contains no PDF statements")
	}
	return files, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open %s in zip", path.Base(f.Name))
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read %s in zip", path.Base(f.Name))
	}
	if len(content) > MaxUploadSize {
		return nil, fmt.Errorf("%s exceeds the upload size limit", path.Base(f.Name))
	}
	return content, nil
}
