package ocr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ocr/process", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, `["en"]`, r.FormValue("languages"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "scan.png", header.Filename)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "png-bytes", string(content))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "completed",
			"file_type":  "image",
			"text":       "Photosynthesis converts light",
			"lines":      []map[string]interface{}{{"text": "Photosynthesis converts light", "bbox": []float64{0, 0, 10, 10}, "confidence": 0.9}},
			"confidence": 0.9,
		})
	}))
	defer srv.Close()

	result, err := NewClient(Config{BaseURL: srv.URL}).Extract(context.Background(), "scan.png", []byte("png-bytes"), nil)
	require.NoError(t, err)
	require.Equal(t, "Photosynthesis converts light", result.Text)
	require.Len(t, result.Lines, 1)
	require.Equal(t, 1, result.Pages)
}

func TestExtractPDFCombinesPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"file_type": "pdf",
			"pages":     2,
			"page_results": []map[string]interface{}{
				{"text": "page one", "confidence": 0.8, "lines": []map[string]interface{}{{"text": "page one"}}},
				{"text": "page two", "confidence": 0.6, "lines": []map[string]interface{}{{"text": "page two"}}},
			},
		})
	}))
	defer srv.Close()

	result, err := NewClient(Config{BaseURL: srv.URL}).Extract(context.Background(), "essay.pdf", []byte("%PDF"), []string{"en"})
	require.NoError(t, err)
	require.Equal(t, "page one\n\npage two", result.Text)
	require.Equal(t, 2, result.Pages)
	require.Len(t, result.Lines, 2)
	require.InDelta(t, 0.7, result.Confidence, 0.0001)
}

func TestExtractReportsServiceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Unsupported file type"}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Extract(context.Background(), "notes.txt", []byte("x"), nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Contains(t, statusErr.Error(), "Unsupported file type")
}

func TestCombineEmpty(t *testing.T) {
	require.Equal(t, Result{}, Combine(nil))
}

func TestSupports(t *testing.T) {
	require.True(t, Supports("Scan.JPEG"))
	require.True(t, Supports("essay.pdf"))
	require.False(t, Supports("essay.docx"))
	require.False(t, Supports("noext"))
}
