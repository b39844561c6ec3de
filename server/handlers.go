package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/georgepadayatti/pdfflatten/flatten"
	"github.com/georgepadayatti/pdfflatten/pdf/images"
	"github.com/georgepadayatti/pdfflatten/signatures"
)

// maxJSONBytes bounds JSON request bodies other than exports, which may
// carry inline signature images and use the upload limit instead.
const maxJSONBytes = 1 << 20

// WarningsHeader carries the number of annotations an export skipped.
const WarningsHeader = "X-Skipped-Annotations"

func uploadName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ".pdf"
}

type uploadResponse struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("pdf")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	original := secureFilename(header.Filename)
	if original == "" {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	if strings.ToLower(filepath.Ext(original)) != ".pdf" {
		writeError(w, http.StatusBadRequest, "File must be a PDF")
		return
	}

	name := s.newName()
	if err := writeFile(filepath.Join(s.cfg.UploadDir, name), file); err != nil {
		s.logger.Error("store upload", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	s.logger.Debug("upload stored", "name", name, "original", original, "size", header.Size)
	writeJSON(w, http.StatusOK, uploadResponse{Filename: name, OriginalName: original})
}

func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !signatures.ValidName(name) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	serveFile(w, r, filepath.Join(s.cfg.UploadDir, name), "application/pdf")
}

type saveSignatureRequest struct {
	DataURL string `json:"dataURL"`
}

func (s *Server) handleSaveSignature(w http.ResponseWriter, r *http.Request) {
	var req saveSignatureRequest
	if err := decodeJSON(w, r, maxJSONBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DataURL == "" {
		writeError(w, http.StatusBadRequest, "No dataURL provided")
		return
	}

	name, err := s.signatures.Save(req.DataURL)
	switch {
	case errors.Is(err, images.ErrInvalidDataURL):
		writeError(w, http.StatusBadRequest, "Invalid dataURL")
		return
	case errors.Is(err, images.ErrUnsupportedFormat),
		errors.Is(err, images.ErrDecodeFailed),
		errors.Is(err, images.ErrInvalidImage),
		errors.Is(err, images.ErrInvalidDimensions):
		writeError(w, http.StatusBadRequest, "Failed to decode image data")
		return
	case err != nil:
		s.logger.Error("save signature", "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save signature: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"filename": name})
}

func (s *Server) handleListSignatures(w http.ResponseWriter, r *http.Request) {
	names, err := s.signatures.List()
	if err != nil {
		s.logger.Warn("list signatures", "error", err)
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"files": names})
}

func (s *Server) handleServeSignature(w http.ResponseWriter, r *http.Request) {
	path, err := s.signatures.Path(r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "signature not found")
		return
	}
	serveFile(w, r, path, "image/png")
}

type exportRequest struct {
	Filename     string          `json:"filename"`
	OriginalName string          `json:"original_name"`
	Annotations  json.RawMessage `json:"annotations"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, s.cfg.MaxUploadBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}
	if !signatures.ValidName(req.Filename) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	var anns []flatten.Annotation
	if raw := bytes.TrimSpace(req.Annotations); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var err error
		if anns, err = flatten.DecodeAnnotations(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	src, err := os.ReadFile(filepath.Join(s.cfg.UploadDir, req.Filename))
	if errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	} else if err != nil {
		s.logger.Error("read upload", "name", req.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	res, err := s.flattener.Assemble(r.Context(), src, anns)
	if err != nil {
		status := http.StatusInternalServerError
		var asmErr *flatten.AssemblyError
		switch {
		case r.Context().Err() != nil:
			status = http.StatusServiceUnavailable
		case errors.As(err, &asmErr):
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("export failed", "name", req.Filename, "status", status, "error", err)
		writeError(w, status, err.Error())
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": flatten.DownloadName(req.OriginalName, req.Filename),
	})
	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", disposition)
	h.Set("Content-Length", strconv.Itoa(len(res.Output)))
	h.Set(WarningsHeader, strconv.Itoa(len(res.Warnings)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Output)
}

// decodeJSON reads a single JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// writeFile copies src into a new file at path, removing it on failure.
func writeFile(path string, src io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// secureFilename reduces a client supplied file name to ASCII letters,
// digits, '.', '-' and '_', dropping any directory part.
func secureFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-", r)) {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}
