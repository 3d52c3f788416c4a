package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

func TestHTTPArtifactResolverFetchesOpaqueToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("log contents"))
	}))
	defer srv.Close()

	resolver := newHTTPArtifactResolver()
	body, err := resolver.Resolve(context.Background(), models.LogArtifact{Name: "app.log", OpaqueToken: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "log contents", string(body))
}

func TestHTTPArtifactResolverNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resolver := newHTTPArtifactResolver()
	_, err := resolver.Resolve(context.Background(), models.LogArtifact{Name: "app.log", OpaqueToken: srv.URL})
	assert.Error(t, err)
}

func TestIdentityDecryptIsPassthrough(t *testing.T) {
	in := []byte("already plaintext")
	out, err := identityDecrypt(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
