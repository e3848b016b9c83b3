package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/waveprint/waveprint/internal/audio"
	"github.com/waveprint/waveprint/internal/config"
	"github.com/waveprint/waveprint/internal/engine"
	"github.com/waveprint/waveprint/internal/fingerprint"
	"github.com/waveprint/waveprint/internal/index"
	"github.com/waveprint/waveprint/internal/store"
	"github.com/waveprint/waveprint/pkg/logger"
)

// Server exposes the registry core over HTTP and wires the external
// collaborators (content store, ledger) after admitted decisions.
type Server struct {
	eng          *engine.Engine
	contentStore store.ContentStore
	ledger       store.Ledger
	cfg          *config.Config
	log          *logger.Logger
}

func NewServer(eng *engine.Engine, contentStore store.ContentStore, ledger store.Ledger, cfg *config.Config) *Server {
	return &Server{
		eng:          eng,
		contentStore: contentStore,
		ledger:       ledger,
		cfg:          cfg,
		log:          logger.GetLogger(),
	}
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.log.Infof("Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondCoreError maps core error taxonomy to HTTP status codes.
func (s *Server) respondCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fingerprint.ErrInsufficientAudio),
		errors.Is(err, fingerprint.ErrNoExtractableFeatures):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, index.ErrUnknownEntry):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, index.ErrIndexUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Errorf("Internal error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "WavePrint Registry API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":  "GET /health",
			"submit":  "POST /api/submit",
			"query":   "POST /api/query",
			"entries": "GET /api/entries",
			"entry":   "GET /api/entries/{id}",
			"ledger":  "GET /api/ledger",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"entries": len(s.eng.Entries()),
		"time":    time.Now().Format(time.RFC3339),
	})
}

// readUpload extracts the raw bytes and decoded, rate-prepared signal from
// a multipart upload.
func (s *Server) readUpload(r *http.Request) ([]byte, audio.Signal, error) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, audio.Signal{}, fmt.Errorf("parsing multipart form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, audio.Signal{}, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, MaxUploadBytes+1))
	if err != nil {
		return nil, audio.Signal{}, fmt.Errorf("reading upload: %w", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, audio.Signal{}, fmt.Errorf("upload exceeds %d bytes", MaxUploadBytes)
	}

	sig, err := audio.DecodeWAV(bytes.NewReader(raw))
	if err != nil {
		return nil, audio.Signal{}, fmt.Errorf("decoding audio: %w", err)
	}
	sig, err = audio.Prepare(sig, s.cfg.Audio.SampleRate)
	if err != nil {
		return nil, audio.Signal{}, fmt.Errorf("resampling audio: %w", err)
	}
	return raw, sig, nil
}

// handleSubmit handles POST /api/submit: run the decision pipeline and, on
// admission, hand off to the content store and ownership ledger.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, sig, err := s.readUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner := r.FormValue("owner")
	if owner == "" {
		owner = "anonymous"
	}

	decision, err := s.eng.Submit(r.Context(), sig)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	resp := SubmitResponse{
		State:      string(decision.State),
		TokenCount: decision.TokenCount,
		Candidates: toCandidateDTOs(decision.Candidates),
	}

	switch decision.State {
	case engine.StateAdmitted:
		resp.EntryID = decision.EntryID

		contentHash, err := s.contentStore.Put(raw)
		if err != nil {
			// The entry is already admitted; surface the handoff gap
			// instead of pretending the submission failed.
			s.log.Errorf("Content store put failed for entry %d: %v", decision.EntryID, err)
			s.respondError(w, http.StatusInternalServerError,
				fmt.Sprintf("entry %d admitted but content storage failed", decision.EntryID))
			return
		}
		resp.ContentHash = contentHash

		if err := s.eng.BindContent(decision.EntryID, contentHash); err != nil {
			s.log.Errorf("Binding content hash for entry %d: %v", decision.EntryID, err)
		}

		rec, err := s.ledger.Record(r.Context(), decision.EntryID, contentHash, owner)
		if err != nil {
			s.log.Errorf("Ledger record failed for entry %d: %v", decision.EntryID, err)
			s.respondError(w, http.StatusInternalServerError,
				fmt.Sprintf("entry %d admitted but ledger record failed", decision.EntryID))
			return
		}
		resp.LedgerRef = rec.Ref
		s.respondJSON(w, http.StatusCreated, resp)

	case engine.StateRejected:
		resp.EntryID = decision.EntryID
		s.respondJSON(w, http.StatusConflict, resp)

	case engine.StateFlagged:
		s.respondJSON(w, http.StatusAccepted, resp)
	}
}

// handleQuery handles POST /api/query: a dry-run lookup with no mutation.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	_, sig, err := s.readUpload(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := s.eng.Query(r.Context(), sig)
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, QueryResponse{
		Candidates: toCandidateDTOs(candidates),
		Count:      len(candidates),
	})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.eng.Entries()
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:          e.ID,
			TokenCount:  e.TokenCount,
			ContentHash: e.ContentHash,
			CreatedAt:   e.CreatedAt,
		}
	}
	s.respondJSON(w, http.StatusOK, ListEntriesResponse{Entries: dtos, Count: len(dtos)})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := s.eng.Entry(uint32(id))
	if err != nil {
		s.respondCoreError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, EntryDTO{
		ID:          entry.ID,
		TokenCount:  entry.TokenCount,
		ContentHash: entry.ContentHash,
		CreatedAt:   entry.CreatedAt,
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.Records()
	if err != nil {
		s.log.Errorf("Reading ledger: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read ledger")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}
