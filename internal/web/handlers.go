package web

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"github.com/enerflux/meterhub/internal/ingest"
	"github.com/enerflux/meterhub/internal/logging"
)

// uploadResponse wraps the pipeline result with the upload's correlation id.
type uploadResponse struct {
	UploadID string `json:"uploadId"`
	ingest.UploadResult
}

// handleUpload accepts a multipart CSV upload and runs it through the
// ingestion pipeline. The file part is streamed straight into the pipeline;
// it is never buffered in full.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if err := s.limiter.Acquire(r.Context()); err != nil {
		if errors.Is(err, ErrTooManyUploads) {
			respondError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		respondError(w, http.StatusServiceUnavailable, "upload slot unavailable")
		return
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Upload.Timeout)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)

	part, err := filePart(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer part.Close()

	uploadID := uuid.New().String()
	log.Info("upload received", "upload_id", uploadID, "file", part.FileName())

	result := s.orchestrator.ProcessUpload(ctx, part.FileName(), part)

	status := http.StatusOK
	if result.FailedReadings == ingest.ContextFailed {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, uploadResponse{UploadID: uploadID, UploadResult: result})
}

// filePart walks the multipart stream to the "file" part without parsing the
// whole form into memory.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errors.New("expected a multipart upload with a \"file\" part")
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, errors.New("multipart upload has no \"file\" part")
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

type createAccountRequest struct {
	AccountID int64  `json:"accountId"`
	Name      string `json:"name"`
}

// handleCreateAccount registers an account so future uploads for it pass the
// account-existence rule.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AccountID <= 0 {
		respondError(w, http.StatusBadRequest, "accountId must be a positive integer")
		return
	}

	if err := s.store.CreateAccount(r.Context(), req.AccountID, req.Name); err != nil {
		logging.FromContext(r.Context()).Error("create account failed", "account_id", req.AccountID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	respondJSON(w, http.StatusCreated, ingest.Account{AccountID: req.AccountID, Name: req.Name})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list accounts failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list accounts")
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
