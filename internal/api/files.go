package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/filemanager"
	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/storage"
)

// multipartMemory is kept in memory while parsing uploads; the rest spills
// to temporary files.
const multipartMemory = 32 << 20

// ─── Folders ────────────────────────────────────────────────────────────────

func (s *Server) handleListFolder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := s.manager.ListFolder(r.Context(), r.PathValue("disk"), q.Get("path"), q.Get("sort"), q.Get("filter"))
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

type createFolderRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := s.manager.CreateFolder(r.Context(), r.PathValue("disk"), req.Path, req.Name)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteFolder(r.Context(), r.PathValue("disk"), r.URL.Query().Get("path")); err != nil {
		s.sendOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Upload ─────────────────────────────────────────────────────────────────

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if s.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", s.maxUploadSize))
			return false
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	opts := filemanager.UploadOptions{}
	if v := r.FormValue("visibility"); v != "" {
		opts.Visibility = storage.ParseVisibility(v)
	}

	d, err := s.manager.UploadFile(r.Context(), r.PathValue("disk"), r.FormValue("path"), uploadFrom(file, header), opts)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

// folderUploadResponse carries the per-file outcome, including on partial
// failure.
type folderUploadResponse struct {
	*filemanager.FolderUploadResult
	Error string `json:"error,omitempty"`
}

func (s *Server) handleUploadFolder(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.sendError(w, http.StatusBadRequest, "files field required")
		return
	}
	paths := r.MultipartForm.Value["paths"]

	files := make([]filemanager.FolderFile, 0, len(headers))
	for i, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.sendError(w, http.StatusBadRequest, "open part: "+err.Error())
			return
		}
		defer f.Close()

		rel := h.Filename
		if i < len(paths) && paths[i] != "" {
			rel = paths[i]
		}
		files = append(files, filemanager.FolderFile{RelativePath: rel, Upload: uploadFrom(f, h)})
	}

	opts := filemanager.UploadOptions{}
	if v := r.FormValue("visibility"); v != "" {
		opts.Visibility = storage.ParseVisibility(v)
	}

	res, err := s.manager.UploadFolder(r.Context(), r.PathValue("disk"), r.FormValue("path"), r.FormValue("name"), files, opts)
	if err != nil && !errors.Is(err, filemanager.ErrPartialFailure) {
		s.sendOpError(w, r, err)
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusMultiStatus, folderUploadResponse{FolderUploadResult: res, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, folderUploadResponse{FolderUploadResult: res})
}

func uploadFrom(f multipart.File, h *multipart.FileHeader) *filemanager.Upload {
	return &filemanager.Upload{
		Name:        h.Filename,
		Size:        h.Size,
		ContentType: h.Header.Get("Content-Type"),
		Body:        f,
	}
}

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rc, d, err := s.manager.DownloadFile(r.Context(), r.PathValue("disk"), r.URL.Query().Get("path"))
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	defer rc.Close()

	ct := d.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.Name}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		logging.WithContext(r.Context()).Warn("content transfer error",
			zap.String("path", d.Path), zap.Error(err))
	}
}

// ─── Files ──────────────────────────────────────────────────────────────────

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	withExtras, _ := strconv.ParseBool(q.Get("extras"))

	d, err := s.manager.Describe(r.Context(), r.PathValue("disk"), q.Get("path"), withExtras)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RemoveFile(r.Context(), r.PathValue("disk"), r.URL.Query().Get("path")); err != nil {
		s.sendOpError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := s.manager.DuplicateFile(r.Context(), r.PathValue("disk"), req.Path)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

type renameRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := s.manager.RenameFile(r.Context(), r.PathValue("disk"), req.Path, req.Name)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	d, err := s.manager.MoveFile(r.Context(), r.PathValue("disk"), req.From, req.To)
	if err != nil {
		s.sendOpError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}
