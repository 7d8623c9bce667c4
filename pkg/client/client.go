// Package client implements the syncx CLI core: registration, packing
// and uploading a directory, and downloading files with local proof
// verification against the stored root.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/syncx-labs/syncx/pkg/archive"
	"github.com/syncx-labs/syncx/pkg/merkle"
)

// ProofHeader matches the server's download proof header.
const ProofHeader = "X-Merkle-Proof"

// ChecksumHeader matches the server's upload checksum header.
const ChecksumHeader = "X-Checksum"

// ErrNotRegistered is returned when an operation needs an identity but
// the state holds none.
var ErrNotRegistered = errors.New("client: not registered, run create_account first")

// ErrNoRoot is returned when a download cannot be verified because no
// upload ever stored a root.
var ErrNoRoot = errors.New("client: no stored root, upload a directory first")

// Config configures a Client.
type Config struct {
	BaseURL  string
	StateDir string // defaults to DefaultStateDir()
	HTTP     *http.Client
	Logger   *slog.Logger
}

// Client talks to a syncx server and keeps the local commitment.
type Client struct {
	baseURL  string
	stateDir string
	http     *http.Client
	logger   *slog.Logger
	state    *State
}

// New loads the persisted state and returns a ready client.
func New(cfg Config) (*Client, error) {
	stateDir := cfg.StateDir
	if stateDir == "" {
		var err error
		stateDir, err = DefaultStateDir()
		if err != nil {
			return nil, err
		}
	}

	state, err := LoadState(stateDir)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		stateDir: stateDir,
		http:     httpClient,
		logger:   logger.With("component", "client"),
		state:    state,
	}, nil
}

// State returns the current commitment state.
func (c *Client) State() *State {
	return c.state
}

type registerRequest struct {
	Password string `json:"password"`
}

type registerResponse struct {
	ID       string `json:"id"`
	JWTToken string `json:"jwt_token"`
}

// Register creates an account and persists the issued identity.
func (c *Client) Register(ctx context.Context, password string) (string, error) {
	body, err := json.Marshal(registerRequest{Password: password})
	if err != nil {
		return "", fmt.Errorf("encode registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/clients", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("register: server answered %s", resp.Status)
	}

	var reply registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode registration reply: %w", err)
	}

	c.state.ID = reply.ID
	c.state.JWT = reply.JWTToken
	if err := c.state.Save(c.stateDir); err != nil {
		return "", err
	}

	c.logger.Info("registered", "id", reply.ID)
	return reply.ID, nil
}

type loginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type loginResponse struct {
	JWTToken string `json:"jwt_token"`
}

// Login re-issues a bearer token for the stored identity, replacing
// an expired one.
func (c *Client) Login(ctx context.Context, password string) error {
	if c.state.ID == "" {
		return ErrNotRegistered
	}

	body, err := json.Marshal(loginRequest{ID: c.state.ID, Password: password})
	if err != nil {
		return fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tokens", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("login: server answered %s", resp.Status)
	}

	var reply loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode login reply: %w", err)
	}

	c.state.JWT = reply.JWTToken
	if err := c.state.Save(c.stateDir); err != nil {
		return err
	}

	c.logger.Info("token refreshed", "id", c.state.ID)
	return nil
}

// UploadResult reports what Upload committed to.
type UploadResult struct {
	Root  string
	Files []string
}

// Upload packs the directory's files (non-recursive), stores the batch
// root locally, then streams the archive to the server. The stored
// root is the trust anchor for every later download.
func (c *Client) Upload(ctx context.Context, dir string) (*UploadResult, error) {
	if c.state.JWT == "" {
		return nil, ErrNotRegistered
	}

	names, filePaths, contents, err := listDir(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("directory %s holds no files to upload", dir)
	}

	tree, err := merkle.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}

	zipFile, err := os.CreateTemp("", "syncx-upload-*.zip")
	if err != nil {
		return nil, fmt.Errorf("stage archive: %w", err)
	}
	zipPath := zipFile.Name()
	_ = zipFile.Close()
	defer os.Remove(zipPath)

	if err := archive.Pack(filePaths, zipPath); err != nil {
		return nil, fmt.Errorf("pack %s: %w", dir, err)
	}

	if err := c.send(ctx, zipPath); err != nil {
		return nil, err
	}

	c.state.MerkleTreeRoot = tree.Root()
	if err := c.state.Save(c.stateDir); err != nil {
		return nil, err
	}

	c.logger.Info("upload committed", "root", tree.Root(), "files", len(names))
	return &UploadResult{Root: tree.Root(), Files: names}, nil
}

// send streams the packed archive with its checksum header.
func (c *Client) send(ctx context.Context, zipPath string) error {
	zipBytes, err := os.ReadFile(zipPath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	sum := sha256.Sum256(zipBytes)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", bytes.NewReader(zipBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.state.JWT)
	req.Header.Set(ChecksumHeader, hex.EncodeToString(sum[:]))
	req.Header.Set("Content-Type", "application/zip")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload: server answered %s", resp.Status)
	}
	return nil
}

// DownloadResult reports a fetched file and its verification outcome.
type DownloadResult struct {
	Path         string
	Valid        bool
	ComputedRoot string
	ExpectedRoot string
}

type proofEnvelope struct {
	Nodes []merkle.ProofNode `json:"nodes"`
}

// Download fetches one file into destDir and verifies its inclusion
// proof against the locally stored root. The file is written either
// way; Valid says whether the server's proof checks out.
func (c *Client) Download(ctx context.Context, fileName, destDir string) (*DownloadResult, error) {
	if c.state.JWT == "" {
		return nil, ErrNotRegistered
	}
	if c.state.MerkleTreeRoot == "" {
		return nil, ErrNoRoot
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/files/"+fileName, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.state.JWT)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: server answered %s", fileName, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileName, err)
	}

	var envelope proofEnvelope
	if err := json.Unmarshal([]byte(resp.Header.Get(ProofHeader)), &envelope); err != nil {
		return nil, fmt.Errorf("parse proof for %s: %w", fileName, err)
	}

	valid, computed := merkle.Verify(merkle.HashBytes(data), envelope.Nodes, c.state.MerkleTreeRoot)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure dest dir: %w", err)
	}
	outPath := filepath.Join(destDir, fileName)
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", outPath, err)
	}

	c.logger.Info("download verified", "file", fileName, "valid", valid, "computed_root", computed)
	return &DownloadResult{
		Path:         outPath,
		Valid:        valid,
		ComputedRoot: computed,
		ExpectedRoot: c.state.MerkleTreeRoot,
	}, nil
}

// listDir returns the directory's regular files, sorted by name.
// Subdirectories are skipped; batches are flat.
func listDir(dir string) (names []string, filePaths []string, contents [][]byte, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read %s: %w", p, err)
		}
		filePaths = append(filePaths, p)
		contents = append(contents, data)
	}
	return names, filePaths, contents, nil
}
