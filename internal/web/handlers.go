package web

import (
	"io"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ingest/internal/core"
	"github.com/JonMunkholm/ingest/internal/logging"
	"github.com/JonMunkholm/ingest/internal/web/ui"
)

type messageResponse struct {
	Message string `json:"message"`
}

type transferResponse struct {
	Message     string `json:"message"`
	RecordCount int64  `json:"recordCount"`
	TransferID  string `json:"transferId"`
	OutputFile  string `json:"outputFile,omitempty"`
	Location    string `json:"location,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := ui.Index(ui.IndexData{
		Engines:       s.service.Engines(),
		RequireAPIKey: s.cfg.Security.RequireAPIKey,
		MaxFileSize:   s.service.MaxFileSize(),
		DefaultEngine: s.cfg.Database.DefaultEngine,
		ExportSink:    s.service.ExportSink(),
	})
	templ.Handler(page).ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string                      `json:"status"`
	Transfers *core.TransferLimiterStatus `json:"transfers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Transfers = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Engines())
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnConfig(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.service.TestConnection(r.Context(), cfg); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Connection successful"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnConfig(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	tables, err := s.service.ListTables(r.Context(), cfg)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleListColumns(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnConfig(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	columns, err := s.service.ListColumns(r.Context(), cfg)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func (s *Server) handlePreviewTable(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnConfig(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rows, err := s.service.PreviewTable(r.Context(), cfg, queryColumns(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleFileColumns(w http.ResponseWriter, r *http.Request) {
	u, err := s.parseUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer u.Close()

	columns, err := s.service.FileColumns(r.Context(), u.Upload, u.Delimiter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	u, err := s.parseUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer u.Close()

	rows, err := s.service.PreviewFile(r.Context(), u.Upload, u.Delimiter, formList(r, "columns"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeConnConfig(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	delimiter, err := queryDelimiter(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.ExportToFile(ctx, cfg, queryColumns(r), delimiter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{
		Message:     "Export successful",
		RecordCount: out.RecordCount,
		TransferID:  out.TransferID,
		OutputFile:  out.OutputFile,
		Location:    out.Location,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	u, err := s.parseUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer u.Close()

	cfg, err := formConnConfig(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	types, err := formTypes(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	opts := core.ImportOptions{Types: types, OrderBy: formList(r, "orderBy")}

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.ImportFromFile(ctx, cfg, u.Upload, u.Delimiter, formList(r, "columns"), opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{
		Message:     "Import successful",
		RecordCount: out.RecordCount,
		TransferID:  out.TransferID,
	})
}

func (s *Server) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rc, err := s.service.OpenExport(r.Context(), name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Warn("export download interrupted", "file", name, "error", err)
	}
}
