package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncx-labs/syncx/pkg/auth"
	"github.com/syncx-labs/syncx/pkg/blob"
	"github.com/syncx-labs/syncx/pkg/cache"
	"github.com/syncx-labs/syncx/pkg/merkle"
	"github.com/syncx-labs/syncx/pkg/paths"
	"github.com/syncx-labs/syncx/pkg/store"
)

type fakeDocs struct {
	mu      sync.Mutex
	clients map[string]*store.ClientRecord
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{clients: make(map[string]*store.ClientRecord)}
}

func (d *fakeDocs) FindClient(_ context.Context, id string) (*store.ClientRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.clients[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (d *fakeDocs) InsertClient(_ context.Context, rec store.ClientRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.clients[rec.ID]; !ok {
		d.clients[rec.ID] = &rec
	}
	return nil
}

type fixture struct {
	srv    *Server
	ts     *httptest.Server
	docs   *fakeDocs
	mem    *cache.Memory
	blobs  *blob.FileStore
	tokens *auth.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)

	mem := cache.NewMemory()
	docs := newFakeDocs()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	srv := New(Options{
		Docs:    docs,
		Cache:   mem,
		Queue:   mem,
		Blobs:   blobs,
		Tokens:  tokens,
		WorkDir: t.TempDir(),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{srv: srv, ts: ts, docs: docs, mem: mem, blobs: blobs, tokens: tokens}
}

func (f *fixture) register(t *testing.T) (id, token string) {
	t.Helper()
	resp, err := http.Post(f.ts.URL+"/v1/clients", "application/json",
		bytes.NewReader([]byte(`{"password":"hunter2"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body registerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.ID, body.JWTToken
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	id, token := f.register(t)
	assert.NotEmpty(t, id)

	// The token identifies the registered client.
	uid, err := f.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, uid)

	// The password is stored hashed, never in the clear.
	rec, err := f.docs.FindClient(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NotEqual(t, "hunter2", rec.PasswordHash)
	valid, err := auth.VerifyPassword("hunter2", rec.PasswordHash)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestRegisterRejectsEmptyPassword(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.ts.URL+"/v1/clients", "application/json",
		bytes.NewReader([]byte(`{"password":""}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	id, _ := f.register(t)

	body, err := json.Marshal(map[string]string{"id": id, "password": "hunter2"})
	require.NoError(t, err)
	resp, err := http.Post(f.ts.URL+"/v1/tokens", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var reply loginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	uid, err := f.tokens.Verify(reply.JWTToken)
	require.NoError(t, err)
	assert.Equal(t, id, uid)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	id, _ := f.register(t)

	cases := []map[string]string{
		{"id": id, "password": "wrong"},
		{"id": "no-such-client", "password": "hunter2"},
	}
	for _, c := range cases {
		body, err := json.Marshal(c)
		require.NoError(t, err)
		resp, err := http.Post(f.ts.URL+"/v1/tokens", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/clients")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func (f *fixture) upload(t *testing.T, token string, body []byte, sum string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+"/v1/files", bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sum != "" {
		req.Header.Set(ChecksumHeader, sum)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) popJob(t *testing.T) (string, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	job, err := f.mem.BlockingPop(ctx, cache.JobQueue)
	if err != nil {
		return "", false
	}
	return job, true
}

func TestUploadRequiresAuth(t *testing.T) {
	f := newFixture(t)

	data := []byte("zip bytes")
	resp := f.upload(t, "", data, checksum(data))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.upload(t, "not-a-token", data, checksum(data))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)
	_, token := f.register(t)

	resp := f.upload(t, token, nil, checksum(nil))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, queued := f.popJob(t)
	assert.False(t, queued)
}

func TestUploadRejectsChecksumMismatch(t *testing.T) {
	f := newFixture(t)
	id, token := f.register(t)

	data := []byte("zip bytes")
	resp := f.upload(t, token, data, checksum([]byte("other bytes")))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Nothing queued, nothing left in the landing zone.
	_, queued := f.popJob(t)
	assert.False(t, queued)
	landing := filepath.Join(f.srv.workDir, paths.LocalZipPath(id))
	_, err := os.Stat(landing)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploadLandsAndQueues(t *testing.T) {
	f := newFixture(t)
	id, token := f.register(t)

	data := []byte("fresh archive bytes")
	resp := f.upload(t, token, data, checksum(data))
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	landing := filepath.Join(f.srv.workDir, paths.LocalZipPath(id))
	landed, err := os.ReadFile(landing)
	require.NoError(t, err)
	assert.Equal(t, data, landed)

	job, queued := f.popJob(t)
	require.True(t, queued)
	assert.Equal(t, id, job)
}

func TestUploadTruncatesPreviousLanding(t *testing.T) {
	f := newFixture(t)
	id, token := f.register(t)

	// Pre-seed a larger stale landing file for this client.
	landing := filepath.Join(f.srv.workDir, paths.LocalZipPath(id))
	require.NoError(t, os.MkdirAll(filepath.Dir(landing), 0o755))
	require.NoError(t, os.WriteFile(landing, bytes.Repeat([]byte("x"), 1024), 0o644))

	data := []byte("small")
	resp := f.upload(t, token, data, checksum(data))
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	landed, err := os.ReadFile(landing)
	require.NoError(t, err)
	assert.Equal(t, data, landed)
}

// strictQueue refuses pushes on a dead context, matching go-redis
// behavior.
type strictQueue struct {
	*cache.Memory
}

func (q strictQueue) Push(ctx context.Context, queue, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.Memory.Push(ctx, queue, value)
}

func TestUploadEnqueueSurvivesClientDisconnect(t *testing.T) {
	blobs, err := blob.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mem := cache.NewMemory()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	srv := New(Options{
		Docs:    newFakeDocs(),
		Cache:   mem,
		Queue:   strictQueue{mem},
		Blobs:   blobs,
		Tokens:  tokens,
		WorkDir: t.TempDir(),
	})
	handler := srv.Handler()

	token, err := tokens.Issue("gone-client")
	require.NoError(t, err)

	// The connection drops as soon as the client has read the 201; the
	// request context is already cancelled by the time the job is
	// pushed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := []byte("zip bytes")
	req := httptest.NewRequest(http.MethodPost, "/v1/files", bytes.NewReader(data)).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(ChecksumHeader, checksum(data))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	popCtx, popCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer popCancel()
	job, err := mem.BlockingPop(popCtx, cache.JobQueue)
	require.NoError(t, err, "acknowledged upload must still be queued")
	assert.Equal(t, "gone-client", job)
}

func TestDownloadUnknownFile(t *testing.T) {
	f := newFixture(t)
	_, token := f.register(t)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/v1/files/missing.txt", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDownloadServesFileWithVerifiableProof(t *testing.T) {
	f := newFixture(t)
	id, token := f.register(t)
	ctx := context.Background()

	files := map[string][]byte{
		"a.txt": []byte("alpha"),
		"b.txt": []byte("bravo"),
		"c.txt": []byte("charlie"),
	}

	leaves := make([][]byte, 0, len(files))
	for name, data := range files {
		leaves = append(leaves, data)
		require.NoError(t, f.blobs.Put(ctx, paths.BackupObjectName(id, name), data))
	}
	tree, err := merkle.NewTree(leaves)
	require.NoError(t, err)
	treeBytes, err := tree.Serialize()
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(ctx,
		paths.BackupObjectName(id, paths.MerkleTreeFileName(id)), treeBytes))

	for name := range files {
		require.NoError(t, f.mem.Set(ctx, paths.ExistenceKey(id, name), "true"))
	}

	for name, data := range files {
		req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/v1/files/"+name, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := new(bytes.Buffer)
		_, err = got.ReadFrom(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, data, got.Bytes())

		var envelope proofEnvelope
		require.NoError(t, json.Unmarshal([]byte(resp.Header.Get(ProofHeader)), &envelope))

		valid, root := merkle.Verify(merkle.HashBytes(data), envelope.Nodes, tree.Root())
		assert.True(t, valid, "proof for %s must verify", name)
		assert.Equal(t, tree.Root(), root)
	}
}

func TestDownloadIsScopedToClient(t *testing.T) {
	f := newFixture(t)
	idA, _ := f.register(t)
	_, tokenB := f.register(t)
	ctx := context.Background()

	data := []byte("private")
	require.NoError(t, f.blobs.Put(ctx, paths.BackupObjectName(idA, "secret.txt"), data))
	tree, err := merkle.NewTree([][]byte{data})
	require.NoError(t, err)
	treeBytes, err := tree.Serialize()
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(ctx,
		paths.BackupObjectName(idA, paths.MerkleTreeFileName(idA)), treeBytes))
	require.NoError(t, f.mem.Set(ctx, paths.ExistenceKey(idA, "secret.txt"), "true"))

	// Client B holds a valid token but has no such file indexed.
	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/v1/files/secret.txt", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenB)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
