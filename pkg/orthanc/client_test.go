package orthanc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer fakes the handful of Orthanc endpoints the client uses. It
// knows one study, UID 1.2.840.999.1, holding 2191 instances.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"Name": "ZFMRF", "Version": "1.12.1", "ApiVersion": 18})
	})

	mux.HandleFunc("/tools/find", func(w http.ResponseWriter, r *http.Request) {
		var query struct {
			Level  string            `json:"Level"`
			Query  map[string]string `json:"Query"`
			Expand bool              `json:"Expand"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		assert.Equal(t, "Study", query.Level)
		assert.True(t, query.Expand)

		if query.Query["StudyInstanceUID"] == "1.2.840.999.1" {
			json.NewEncoder(w).Encode([]map[string]any{{
				"ID":            "abc123",
				"MainDicomTags": map[string]string{"StudyInstanceUID": "1.2.840.999.1"},
				"Series":        []string{"s1", "s2"},
			}})
			return
		}
		json.NewEncoder(w).Encode([]any{})
	})

	mux.HandleFunc("/studies/abc123/statistics", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"CountInstances": 2191, "CountSeries": 2})
	})

	mux.HandleFunc("/instances", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Content-Type") != "application/dicom" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ID": "inst1", "Status": "Success"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(srv.URL, nil)
	require.NoError(t, err)
	return c
}

func TestNewNormalisesAddress(t *testing.T) {
	c, err := New("orthanc.example:8042", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://orthanc.example:8042", c.BaseURL())

	c, err = New("https://orthanc.example/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://orthanc.example", c.BaseURL())

	_, err = New("  ", nil)
	assert.Error(t, err)
}

func TestBasicAuthFromURL(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
		json.NewEncoder(w).Encode(map[string]any{"Name": "ZFMRF"})
	}))
	defer srv.Close()

	addr := strings.Replace(srv.URL, "http://", "http://lab:s3cret@", 1)
	c, err := New(addr, nil)
	require.NoError(t, err)
	// Credentials must not leak into the base URL.
	assert.NotContains(t, c.BaseURL(), "s3cret")

	_, err = c.Ping(context.Background())
	require.NoError(t, err)
	require.True(t, gotOK)
	assert.Equal(t, "lab", gotUser)
	assert.Equal(t, "s3cret", gotPass)
}

func TestWithBasicAuthOption(t *testing.T) {
	var gotOK bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, gotOK = r.BasicAuth()
		json.NewEncoder(w).Encode(map[string]any{"Name": "ZFMRF"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, nil, WithBasicAuth("lab", "pw"))
	require.NoError(t, err)
	_, err = c.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, gotOK)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	info, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ZFMRF", info.Name)
	assert.Equal(t, "1.12.1", info.Version)
}

func TestPingServerDown(t *testing.T) {
	srv := newTestServer(t)
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.Ping(context.Background())
	assert.Error(t, err)
}

func TestFindStudyByUID(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	study, err := c.FindStudyByUID(context.Background(), "1.2.840.999.1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", study.ID)
	assert.Len(t, study.Series, 2)

	_, err = c.FindStudyByUID(context.Background(), "1.2.840.000.0")
	assert.ErrorIs(t, err, ErrStudyNotFound)
}

func TestCountInstancesByStudyUID(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	n, err := c.CountInstancesByStudyUID(context.Background(), "1.2.840.999.1")
	require.NoError(t, err)
	assert.Equal(t, int64(2191), n)

	// Unknown studies count zero rather than failing the check.
	n, err = c.CountInstancesByStudyUID(context.Background(), "1.2.840.000.0")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestErrorCarriesServerBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"Message": "bad query"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	c := newTestClient(t, srv)

	_, err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad query")
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	result, err := c.Upload(context.Background(), []byte("dicom bytes"))
	require.NoError(t, err)
	assert.Equal(t, "Success", result.Status)
}

func writeFakeDICOM(t *testing.T, path string) {
	t.Helper()
	data := make([]byte, 132)
	copy(data[128:], "DICM")
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestUploadDirectory(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	dir := t.TempDir()
	sub := filepath.Join(dir, "SE2_Loc")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFakeDICOM(t, filepath.Join(dir, "im1"))
	writeFakeDICOM(t, filepath.Join(sub, "im2"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.txt"), []byte("not dicom"), 0o644))

	n, err := c.UploadDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUploadDirectoryEmpty(t *testing.T) {
	c := newTestClient(t, newTestServer(t))

	n, err := c.UploadDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUploadDirectoryCancelled(t *testing.T) {
	c := newTestClient(t, newTestServer(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	writeFakeDICOM(t, filepath.Join(dir, "im1"))

	_, err := c.UploadDirectory(ctx, dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context canceled") || strings.Contains(err.Error(), "cancel"))
}
