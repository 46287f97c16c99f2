package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/mailclean/internal/core"
	"github.com/JonMunkholm/mailclean/internal/engine"
	"github.com/JonMunkholm/mailclean/internal/policy"
	"github.com/JonMunkholm/mailclean/internal/report"
	"github.com/JonMunkholm/mailclean/internal/tabular"
)

// multipartMemory is the part of a form kept in memory; the rest spills to
// temporary files.
const multipartMemory = 32 << 20

type healthResponse struct {
	Status string                `json:"status"`
	Runs   core.RunLimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Runs: s.service.LimiterStatus()})
}

type policyResponse struct {
	Policy                 policy.Summary `json:"policy"`
	ConfidenceThreshold    float64        `json:"confidence_threshold"`
	ExcludeRoleAccounts    bool           `json:"exclude_role_accounts"`
	NearDuplicateThreshold int            `json:"near_duplicate_threshold"`
	Classifier             string         `json:"classifier"`
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	eng := s.service.Processor().Engine()
	opts := eng.Options()
	writeJSON(w, http.StatusOK, policyResponse{
		Policy:                 eng.Policy().Summary(),
		ConfidenceThreshold:    opts.ConfidenceThreshold,
		ExcludeRoleAccounts:    opts.ExcludeRoleAccounts,
		NearDuplicateThreshold: opts.NearDuplicateThreshold,
		Classifier:             s.cfg.Classifier.Provider,
	})
}

// readInput parses the multipart upload: a "file" part and an optional
// comma separated "columns" field overriding the configured email columns.
func (s *Server) readInput(w http.ResponseWriter, r *http.Request) (core.Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.Input{}, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, tooLarge.Limit)
		}
		// multipart does not wrap every read error it returns
		if strings.Contains(err.Error(), "request body too large") {
			return core.Input{}, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, s.cfg.Upload.MaxFileSize)
		}
		return core.Input{}, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.Input{}, errNoFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return core.Input{}, fmt.Errorf("read upload: %w", err)
	}

	columns := splitList(r.FormValue("columns"))
	if len(columns) == 0 {
		columns = s.cfg.Engine.EmailColumns
	}

	return core.Input{
		FileName: filepath.Base(header.Filename),
		Data:     data,
		Columns:  columns,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// handleClean runs a file synchronously and returns the full result.
func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	in, err := s.readInput(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.Clean(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

// handleStartRun starts an asynchronous run.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	in, err := s.readInput(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	runID, err := s.service.StartRun(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: runID})
}

// progressResponse adds the derived percentage to a snapshot.
type progressResponse struct {
	core.RunProgress
	Percent int `json:"percent"`
}

func newProgressResponse(p core.RunProgress) progressResponse {
	return progressResponse{RunProgress: p, Percent: p.Percent()}
}

func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.GetRunProgress(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProgressResponse(p))
}

// handleRunResult blocks until the run finishes. With ?wait=false it returns
// 409 instead of blocking on an unfinished run.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var (
		result *core.RunResult
		err    error
	)
	if r.URL.Query().Get("wait") == "false" {
		result, err = s.service.FinishedResult(runID)
	} else {
		result, err = s.service.GetRunResult(r.Context(), runID)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cancelResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// handleCancelRun stops a run. Entries already routed keep their decisions
// and the partial result stays retrievable.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := s.service.CancelRun(runID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cancelResponse{RunID: runID, Status: "cancelling"})
}

// handleRunReport downloads one report of a finished run as CSV (default)
// or JSON.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	kind, err := report.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	var write func(io.Writer, report.Kind, engine.Reports) error
	var contentType string
	switch format {
	case "csv":
		write, contentType = report.WriteCSV, "text/csv; charset=utf-8"
	case "json":
		write, contentType = report.WriteJSON, "application/json"
	default:
		s.respondError(w, r, fmt.Errorf("unknown report format %q", format))
		return
	}

	result, err := s.service.FinishedResult(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, kind, result.Reports); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, kind.FileName(format)))
	_, _ = buf.WriteTo(w)
}

// handleRunOutput downloads the cleaned workbook in the input's format.
func (s *Server) handleRunOutput(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.FinishedResult(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if result.Output == nil {
		s.respondError(w, r, errNoOutput)
		return
	}

	var buf bytes.Buffer
	if err := tabular.Write(&buf, result.Output); err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.Output.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, outputName(result.FileName, result.Output.Format)))
	_, _ = buf.WriteTo(w)
}

// outputName derives the download name, e.g. contacts.xlsx -> contacts_cleaned.xlsx.
func outputName(in string, f tabular.Format) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	if base == "" {
		base = "output"
	}
	return base + "_cleaned." + string(f)
}
