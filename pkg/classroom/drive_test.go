package classroom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newDriveServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		switch {
		case r.URL.Path == "/drive/v3/files/doc-1" && r.URL.Query().Get("fields") != "":
			_, _ = w.Write([]byte(`{"id":"doc-1","name":"Essay","mimeType":"application/vnd.google-apps.document"}`))
		case r.URL.Path == "/drive/v3/files/doc-1/export":
			require.Equal(t, "text/plain", r.URL.Query().Get("mimeType"))
			_, _ = w.Write([]byte("The mitochondria is the powerhouse of the cell."))
		case r.URL.Path == "/drive/v3/files/sheet-1/export":
			require.Equal(t, "text/csv", r.URL.Query().Get("mimeType"))
			_, _ = w.Write([]byte("a,b\n1,2"))
		case r.URL.Path == "/drive/v3/files/flaky-1":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend unavailable"}}`))
		case r.URL.Path == "/drive/v3/files/pdf-1":
			require.Equal(t, "media", r.URL.Query().Get("alt"))
			_, _ = w.Write([]byte("%PDF-1.4\x00\x01binary"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDriveMetadataAndExport(t *testing.T) {
	srv := newDriveServer(t)
	defer srv.Close()

	client := NewDriveClient(DriveConfig{BaseURL: srv.URL})

	file, err := client.Metadata(context.Background(), "good-token", "doc-1")
	require.NoError(t, err)
	require.Equal(t, "Essay", file.Name)
	require.True(t, file.Exported())

	data, err := client.Download(context.Background(), "good-token", file)
	require.NoError(t, err)
	require.Contains(t, string(data), "powerhouse")

	csv, err := client.Download(context.Background(), "good-token", File{ID: "sheet-1", MimeType: MimeGoogleSheet})
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2", string(csv))
}

func TestDriveDownloadsRegularFiles(t *testing.T) {
	srv := newDriveServer(t)
	defer srv.Close()

	client := NewDriveClient(DriveConfig{BaseURL: srv.URL})
	data, err := client.Download(context.Background(), "good-token", File{ID: "pdf-1", MimeType: "application/pdf"})
	require.NoError(t, err)
	require.Contains(t, string(data), "%PDF")
}

func TestDriveErrors(t *testing.T) {
	srv := newDriveServer(t)
	defer srv.Close()

	client := NewDriveClient(DriveConfig{BaseURL: srv.URL})

	_, err := client.Metadata(context.Background(), "bad-token", "doc-1")
	require.ErrorIs(t, err, ErrAccessDenied)

	_, err = client.Metadata(context.Background(), "good-token", "missing")
	require.ErrorIs(t, err, ErrFileNotFound)

	_, err = client.Download(context.Background(), "good-token", File{ID: "flaky-1", MimeType: "application/pdf"})
	require.ErrorContains(t, err, "drive api error (500): backend unavailable")
}

func TestDriveEnforcesSizeLimit(t *testing.T) {
	srv := newDriveServer(t)
	defer srv.Close()

	client := NewDriveClient(DriveConfig{BaseURL: srv.URL, MaxBytes: 8})
	_, err := client.Download(context.Background(), "good-token", File{ID: "doc-1", MimeType: MimeGoogleDoc})
	require.ErrorContains(t, err, "exceeds")
}
