package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/syncx-labs/syncx/pkg/api"
	"github.com/syncx-labs/syncx/pkg/auth"
	"github.com/syncx-labs/syncx/pkg/blob"
	"github.com/syncx-labs/syncx/pkg/cache"
	"github.com/syncx-labs/syncx/pkg/merkle"
	"github.com/syncx-labs/syncx/pkg/paths"
	"github.com/syncx-labs/syncx/pkg/store"
)

const copyBufferSize = 8 * 1024

// ProofHeader carries the inclusion proof on download responses.
const ProofHeader = "X-Merkle-Proof"

// ChecksumHeader carries the client's SHA-256 of the upload body.
const ChecksumHeader = "X-Checksum"

type registerRequest struct {
	Password string `json:"password"`
}

type registerResponse struct {
	ID       string `json:"id"`
	JWTToken string `json:"jwt_token"`
}

type uploadResponse struct {
	Status string `json:"status"`
}

type proofEnvelope struct {
	Nodes []merkle.ProofNode `json:"nodes"`
}

// handleRegister creates a client record and returns its id plus a
// bearer token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "request body must be JSON with a password field")
		return
	}
	if req.Password == "" {
		api.WriteBadRequest(w, "password must not be empty")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	uid := uuid.New().String()
	if err := s.docs.InsertClient(r.Context(), store.ClientRecord{ID: uid, PasswordHash: hash}); err != nil {
		api.WriteInternal(w, err)
		return
	}

	token, err := s.tokens.Issue(uid)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	s.logger.Info("client registered", "id", uid, "request_id", api.GetRequestID(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(registerResponse{ID: uid, JWTToken: token})
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type loginResponse struct {
	JWTToken string `json:"jwt_token"`
}

// handleLogin re-issues a bearer token for an existing account. Wrong
// id and wrong password are indistinguishable to the caller.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "request body must be JSON with id and password fields")
		return
	}
	if req.ID == "" || req.Password == "" {
		api.WriteBadRequest(w, "id and password must not be empty")
		return
	}

	rec, err := s.docs.FindClient(r.Context(), req.ID)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	if rec == nil {
		api.WriteUnauthorized(w, "unknown id or wrong password")
		return
	}

	valid, err := auth.VerifyPassword(req.Password, rec.PasswordHash)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	if !valid {
		api.WriteUnauthorized(w, "unknown id or wrong password")
		return
	}

	token, err := s.tokens.Issue(req.ID)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	s.logger.Info("token re-issued", "id", req.ID, "request_id", api.GetRequestID(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(loginResponse{JWTToken: token})
}

// handleUpload streams the archive to the landing zone, verifies the
// declared checksum, then queues the ingest job. A checksum mismatch
// discards the landed bytes and nothing is queued.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authenticate(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}

	declared := strings.ToLower(r.Header.Get(ChecksumHeader))
	if len(declared) != sha256.Size*2 {
		api.WriteBadRequest(w, "X-Checksum must be the hex SHA-256 of the request body")
		return
	}

	landing := filepath.Join(s.workDir, paths.LocalZipPath(uid))
	if err := os.MkdirAll(filepath.Dir(landing), 0o755); err != nil {
		api.WriteInternal(w, err)
		return
	}

	// Truncate on open so a re-upload never mixes with stale bytes.
	f, err := os.OpenFile(landing, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	hasher := sha256.New()
	buf := make([]byte, copyBufferSize)
	n, err := io.CopyBuffer(io.MultiWriter(f, hasher), r.Body, buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(landing)
		api.WriteInternal(w, err)
		return
	}
	if n == 0 {
		_ = os.Remove(landing)
		api.WriteBadRequest(w, "request body must not be empty")
		return
	}

	if computed := hex.EncodeToString(hasher.Sum(nil)); computed != declared {
		_ = os.Remove(landing)
		api.WriteBadRequest(w, "checksum mismatch between X-Checksum and request body")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(uploadResponse{Status: "queued"})

	// Enqueue after the reply is committed; a queue failure here is an
	// operational incident, not a client error. The request context
	// dies with the connection, and the acknowledged job must not.
	enqueueCtx := context.WithoutCancel(r.Context())
	if err := s.queue.Push(enqueueCtx, cache.JobQueue, uid); err != nil {
		s.logger.Error("enqueue ingest job failed", "id", uid, "error", err)
		if s.obs != nil {
			s.obs.RecordError(r.Context(), err)
		}
		return
	}

	s.logger.Info("upload accepted", "id", uid, "bytes", n,
		"request_id", api.GetRequestID(r.Context()))
}

// handleDownload returns one backed-up file with its inclusion proof
// in the X-Merkle-Proof header.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.authenticate(r)
	if !ok {
		api.WriteUnauthorized(w, "")
		return
	}

	name := r.PathValue("name")
	if name == "" || strings.Contains(name, "/") {
		api.WriteBadRequest(w, "file name must be a single path segment")
		return
	}

	// The existence key is only written once the worker has finished
	// materializing the batch.
	_, exists, err := s.cache.Get(r.Context(), paths.ExistenceKey(uid, name))
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	if !exists {
		api.WriteNotFound(w, "file not indexed for this client")
		return
	}

	fileBytes, err := s.blobs.Get(r.Context(), paths.BackupObjectName(uid, name))
	if errors.Is(err, blob.ErrNotFound) {
		api.WriteNotFound(w, "file not indexed for this client")
		return
	}
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	treeBytes, err := s.blobs.Get(r.Context(), paths.BackupObjectName(uid, paths.MerkleTreeFileName(uid)))
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	tree, err := merkle.Deserialize(treeBytes)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	proof, err := tree.Proof(merkle.HashBytes(fileBytes))
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	proofJSON, err := json.Marshal(proofEnvelope{Nodes: proof})
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	w.Header().Set(ProofHeader, string(proofJSON))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(fileBytes)

	s.logger.Info("download served", "id", uid, "file", name,
		"proof_nodes", len(proof), "request_id", api.GetRequestID(r.Context()))
}
