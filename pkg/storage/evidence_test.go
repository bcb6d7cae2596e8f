package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageIsContentAddressed(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	store, err := NewLocalStorage(t.TempDir(), signer, "/api/v1/evidence")
	require.NoError(t, err)

	ctx := context.Background()
	ref1, err := store.Put(ctx, Evidence{Filename: "a.png", Data: []byte("image-bytes")})
	require.NoError(t, err)
	ref2, err := store.Put(ctx, Evidence{Filename: "b.png", Data: []byte("image-bytes")})
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
	assert.Len(t, ref1, 64)

	url, err := store.ReadURL(ref1)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/api/v1/evidence/"))

	file, err := store.OpenSigned(strings.TrimPrefix(url, "/api/v1/evidence/"))
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "image-bytes", string(content))
}

func TestLocalStorageRejectsEmptyAndForeignReferences(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), NewSignedURLSigner("secret", time.Hour), "/e/")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), Evidence{Filename: "empty.png"})
	require.Error(t, err)

	_, err = store.ReadURL("../../etc/passwd")
	require.Error(t, err)
}

func TestPinataStoreUploadsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "proof.jpg", header.Filename)
		assert.Equal(t, "jpeg", string(data))
		_ = json.NewEncoder(w).Encode(map[string]string{"IpfsHash": "QmHash"})
	}))
	defer server.Close()

	store := NewPinataStore(server.URL, "https://gateway.example/ipfs", "token", server.Client())
	cid, err := store.Put(context.Background(), Evidence{Filename: "proof.jpg", Data: []byte("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "QmHash", cid)

	url, err := store.ReadURL(cid)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example/ipfs/QmHash", url)
}

func TestPinataStoreSurfacesUpstreamErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer server.Close()

	store := NewPinataStore(server.URL, "https://gateway.example/ipfs/", "token", server.Client())
	_, err := store.Put(context.Background(), Evidence{Filename: "proof.jpg", Data: []byte("jpeg")})
	require.ErrorContains(t, err, "status 402")

	_, err = NewPinataStore(server.URL, "", "", nil).Put(context.Background(), Evidence{Data: []byte("x")})
	require.ErrorContains(t, err, "jwt")
}
