package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// PinataStore pins evidence to IPFS through the Pinata pinning API.
type PinataStore struct {
	apiURL     string
	gatewayURL string
	jwt        string
	client     *http.Client
}

// NewPinataStore constructs a Pinata-backed store.
func NewPinataStore(apiURL, gatewayURL, jwt string, client *http.Client) *PinataStore {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if !strings.HasSuffix(gatewayURL, "/") {
		gatewayURL += "/"
	}
	return &PinataStore{apiURL: apiURL, gatewayURL: gatewayURL, jwt: jwt, client: client}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Put uploads the file and returns its CID.
func (s *PinataStore) Put(ctx context.Context, file Evidence) (string, error) {
	if s.jwt == "" {
		return "", fmt.Errorf("pinata jwt not configured")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Filename)
	if err != nil {
		return "", fmt.Errorf("build pinata form: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("write pinata form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close pinata form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, &body)
	if err != nil {
		return "", fmt.Errorf("build pinata request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata upload: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinata upload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode pinata response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinata response missing IpfsHash")
	}
	return out.IpfsHash, nil
}

// ReadURL returns the public gateway URL for a CID.
func (s *PinataStore) ReadURL(reference string) (string, error) {
	if reference == "" {
		return "", fmt.Errorf("empty evidence reference")
	}
	return s.gatewayURL + reference, nil
}
