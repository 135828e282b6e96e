package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/TruckRewards/internal/core"
	"github.com/JonMunkholm/TruckRewards/internal/logging"
	mw "github.com/JonMunkholm/TruckRewards/internal/web/middleware"
	"github.com/JonMunkholm/TruckRewards/internal/web/templates"
)

// maxFormMemory caps the multipart bytes held in memory; the rest spills to disk.
const maxFormMemory = 8 << 20

// handleBulkLoadPage renders the upload form for mode.
func (s *Server) handleBulkLoadPage(mode core.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = templates.BulkLoadPage(templates.BulkLoadPageParams{Mode: mode}).Render(r.Context(), w)
	}
}

// handleBulkLoad accepts a .txt document, runs one ingestion session as the
// signed-in user, and responds with the session summary.
func (s *Server) handleBulkLoad(mode core.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFromContext(r.Context())
		if !ok {
			s.respondError(w, r, core.ErrUnauthenticated, http.StatusUnauthorized)
			return
		}

		maxSize := s.cfg.Ingest.MaxFileSize
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(min(maxSize, maxFormMemory)); err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			s.respondError(w, r, fmt.Errorf("parse upload form: %w", err), status)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
			return
		}
		if !allowedFile(header.Filename) {
			s.respondError(w, r, core.ErrFileType, http.StatusBadRequest)
			return
		}

		actor := core.Actor{Mode: mode, AccountID: user.ID, Username: user.Username}
		logger := logging.WithFields(r.Context(),
			"mode", mode,
			"file", header.Filename,
			"size", header.Size,
			"actor_id", user.ID,
		)

		ctx, cancel := context.WithTimeout(WithRequestMetadata(r.Context(), r), s.cfg.Ingest.Timeout)
		defer cancel()

		summary, err := s.ingestor.Run(ctx, actor, file)
		if err != nil {
			logger.Warn("bulk load session failed", "error", err)
			s.respondError(w, r, err, sessionErrorStatus(err))
			return
		}

		s.logProcessed(ctx, actor, header.Filename, summary)
		logger.Info("bulk load processed",
			"session_id", summary.SessionID,
			"total", summary.Total,
			"success", summary.Success,
			"failed", summary.Failed,
		)

		if wantsJSON(r) {
			writeJSON(w, summary)
			return
		}
		_ = templates.BulkLoadPage(templates.BulkLoadPageParams{
			Mode:     mode,
			FileName: header.Filename,
			Summary:  summary,
		}).Render(r.Context(), w)
	}
}

// logProcessed writes the route-level audit event that names the uploaded file.
func (s *Server) logProcessed(ctx context.Context, actor core.Actor, fileName string, sum *core.Summary) {
	params := core.AuditLogParams{ActorID: actor.AccountID}
	if actor.Mode == core.ModeSponsor {
		params.EventType = core.EventSponsorBulkLoad
		params.Details = fmt.Sprintf("Sponsor %s processed bulk load file: %s, Total: %d, Success: %d, Failed: %d, Sponsors: %d, Drivers: %d",
			actor.Username, fileName, sum.Total, sum.Success, sum.Failed, sum.SponsorsCreated, sum.DriversCreated)
	} else {
		params.EventType = core.EventBulkLoadProcessed
		params.Details = fmt.Sprintf("Processed bulk load file: %s, %s", fileName, sum.String())
	}

	if _, err := s.audit.Log(context.WithoutCancel(ctx), params); err != nil {
		logging.FromContext(ctx).Warn("failed to write audit event",
			"event_type", params.EventType,
			"error", err,
		)
	}
}

// sessionErrorStatus maps a fatal session error to an HTTP status.
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case strings.Contains(err.Error(), "read bulk load document"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// allowedFile reports whether the upload has a .txt extension.
func allowedFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".txt")
}

// handleBulkLoadLogs shows the newest bulk load audit events.
func (s *Server) handleBulkLoadLogs(w http.ResponseWriter, r *http.Request) {
	events, err := s.audit.Recent(r.Context(), core.BulkLoadEventPrefix, core.DefaultAuditLimit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, map[string]any{"events": events})
		return
	}
	_ = templates.BulkLoadLogs(events).Render(r.Context(), w)
}

// handleDownloadTemplate sends the example document for the user's role.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	mode := core.ModeAdmin
	if u, ok := mw.UserFromContext(r.Context()); ok && u.Role == core.RoleSponsor {
		mode = core.ModeSponsor
	}

	name, content := core.BulkLoadTemplate(mode)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	_, _ = w.Write([]byte(content))
}
