package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/muvahhid/molayeri-sub002/config"
	"github.com/muvahhid/molayeri-sub002/pkg/access"
	"github.com/muvahhid/molayeri-sub002/pkg/listing"
	"github.com/muvahhid/molayeri-sub002/pkg/photo"
	"github.com/muvahhid/molayeri-sub002/util/log"
)

type sessionKey struct{}

func withSession(ctx context.Context, s access.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session attached by the auth middleware.
func SessionFrom(ctx context.Context) (access.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(access.Session)
	return s, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "running"
	if s.stopping.Value() {
		status = "stopping"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           config.AppVersion,
		"uploads_in_flight": s.inFlight.Value(),
	})
}

// readSources reads every part named field from a multipart request.
func readSources(r *http.Request, field string, maxMemory int64) ([]photo.Source, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, err
	}
	headers := r.MultipartForm.File[field]
	sources := make([]photo.Source, 0, len(headers))
	for _, fh := range headers {
		src, err := readSource(fh)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func readSource(fh *multipart.FileHeader) (photo.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return photo.Source{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return photo.Source{}, err
	}
	return photo.Source{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// handleNormalize normalizes a single uploaded file and returns the JPEG.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	sources, err := readSources(r, "file", s.opts.MaxUploadBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	if len(sources) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one file is required")
		return
	}

	res, err := s.normalizer.Normalize(r.Context(), sources[0])
	if err != nil {
		status := http.StatusInternalServerError
		if photo.IsFileError(err) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(res.SizeBytes))
	w.Header().Set("X-Photo-Size", strconv.Itoa(res.SizeBytes))
	w.Header().Set("X-Photo-Width", strconv.Itoa(res.Width))
	w.Header().Set("X-Photo-Height", strconv.Itoa(res.Height))
	w.Header().Set("X-Photo-Quality", strconv.FormatFloat(res.Quality, 'f', 2, 64))
	w.Header().Set("X-Budget-Met", strconv.FormatBool(res.BudgetMet))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

type failedFile struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type draftResponse struct {
	ListingID string             `json:"listing_id"`
	Photos    []photo.Photo      `json:"photos"`
	Published []listing.PhotoRef `json:"published"`
	MaxCount  int                `json:"max_count"`
	MinCount  int                `json:"min_count"`
	Ready     bool               `json:"ready"`
	Shortfall int                `json:"shortfall"`
}

type addResponse struct {
	draftResponse
	Added        int          `json:"added"`
	Failed       []failedFile `json:"failed"`
	Dropped      int          `json:"dropped"`
	LimitReached bool         `json:"limit_reached"`
	Warning      string       `json:"warning,omitempty"`
}

func (s *Server) draftView(listingID string, b *photo.Batch) draftResponse {
	resp := draftResponse{
		ListingID: listingID,
		Photos:    b.Photos(),
		Published: []listing.PhotoRef{},
		MaxCount:  b.MaxCount(),
		MinCount:  b.MinCount(),
		Ready:     b.Ready(),
		Shortfall: b.Shortfall(),
	}
	if l, ok := s.publisher.Store().Get(listingID); ok {
		resp.Published = l.Photos
	}
	return resp
}

func (s *Server) handleListDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.lookupDraft(id)
	if !ok {
		b = s.emptyDraft()
	}
	writeJSON(w, http.StatusOK, s.draftView(id, b))
}

// handleAddPhotos runs the picked files through the orchestrator into the
// listing's draft batch and streams progress to websocket clients.
func (s *Server) handleAddPhotos(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sources, err := readSources(r, "files", s.opts.MaxUploadBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	if len(sources) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	session, _ := SessionFrom(r.Context())
	b := s.draft(id)
	orch := photo.NewOrchestrator(s.normalizer)
	orch.OnProgress(func(p photo.Progress) {
		s.BroadcastProgress(session.UserID, id, p)
	})

	report, err := orch.AddFiles(r.Context(), b, sources)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		log.Printf("API: adding photos to %s stopped: %v", id, err)
		writeError(w, status, err.Error())
		return
	}

	resp := addResponse{
		draftResponse: s.draftView(id, b),
		Added:         len(report.Added),
		Failed:        make([]failedFile, 0, len(report.Failed)),
		Dropped:       report.Dropped,
		LimitReached:  report.LimitReached,
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, failedFile{Name: f.Name, Error: f.Err.Error()})
	}
	if err := report.Err(); err != nil {
		resp.Warning = err.Error()
	}
	if b.Len() == 0 {
		s.dropDraft(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.lookupDraft(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no draft for listing "+id)
		return
	}
	if err := b.Remove(r.PathValue("photoID")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	resp := s.draftView(id, b)
	if b.Len() == 0 {
		s.dropDraft(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetCover(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.lookupDraft(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no draft for listing "+id)
		return
	}
	if err := b.SetCover(r.PathValue("photoID")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.draftView(id, b))
}

// handleSubmit publishes the draft. A draft below the minimum is refused
// with the exact shortfall.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.lookupDraft(id)
	if !ok {
		b = s.emptyDraft()
	}

	l, err := s.publisher.Submit(r.Context(), id, b)
	if errors.Is(err, listing.ErrNotReady) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     err.Error(),
			"shortfall": b.Shortfall(),
		})
		return
	}
	if err != nil {
		log.Printf("API: submit for %s failed: %v", id, err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if session, ok := SessionFrom(r.Context()); ok {
		log.Printf("API: %s submitted %d photos for listing %s", session.UserID, len(l.Photos), id)
	}
	s.dropDraft(id)
	writeJSON(w, http.StatusOK, l)
}

// publishedError maps publisher lookup errors to 404 and the rest to 502.
func publishedError(w http.ResponseWriter, err error) {
	if errors.Is(err, listing.ErrListingNotFound) || errors.Is(err, photo.ErrPhotoNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) handleRemovePublished(w http.ResponseWriter, r *http.Request) {
	l, err := s.publisher.RemovePhoto(r.Context(), r.PathValue("id"), r.PathValue("photoID"))
	if err != nil {
		publishedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleSetPublishedCover(w http.ResponseWriter, r *http.Request) {
	l, err := s.publisher.SetCover(r.PathValue("id"), r.PathValue("photoID"))
	if err != nil {
		publishedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleDeleteListing removes a published listing with its objects and any
// draft still in memory.
func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.publisher.DeleteListing(r.Context(), id); err != nil {
		if !errors.Is(err, listing.ErrListingNotFound) {
			log.Printf("API: deleting listing %s failed: %v", id, err)
		}
		publishedError(w, err)
		return
	}
	s.dropDraft(id)
	w.WriteHeader(http.StatusNoContent)
}
