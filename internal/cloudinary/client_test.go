package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "1700000000", "folder": "reports", "api_key": "key", "file": "x"})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=reports&timestamp=1700000000secret")))
	assert.Equal(t, want, got)
}

func TestUploadRaw(t *testing.T) {
	var (
		path     string
		folder   string
		publicID string
		content  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		folder = r.FormValue("folder")
		publicID = r.FormValue("public_id")
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		content, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"public_id":"reports/r-1","secure_url":"https://res.cloudinary.com/demo/raw/upload/reports/r-1","resource_type":"raw","bytes":5}`)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "reports")
	c.BaseURL = srv.URL
	res, err := c.UploadRaw(context.Background(), []byte("hello"), "r-1", "report.xlsx")
	require.NoError(t, err)

	assert.Equal(t, "/v1_1/demo/raw/upload", path)
	assert.Equal(t, "reports", folder)
	assert.Equal(t, "r-1", publicID)
	assert.Equal(t, []byte("hello"), content)
	assert.Equal(t, "raw", res.ResourceType)
	assert.Contains(t, res.SecureURL, "reports/r-1")
}

func TestUploadRawError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	_, err := c.UploadRaw(context.Background(), []byte("x"), "", "a.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
