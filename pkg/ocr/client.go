package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

// SupportedExtensions lists the file types the OCR service accepts.
var SupportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".pdf":  true,
	".bmp":  true,
	".gif":  true,
}

// Supports reports whether filename has an OCR-able extension.
func Supports(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Line is a recognised line of text.
type Line struct {
	Text       string    `json:"text"`
	BBox       []float64 `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// Page is the recognition output for one image or PDF page.
type Page struct {
	Text       string  `json:"text"`
	Lines      []Line  `json:"lines"`
	Confidence float64 `json:"confidence"`
}

// Result is the normalised output for one file.
type Result struct {
	Text       string  `json:"text"`
	Lines      []Line  `json:"lines"`
	Confidence float64 `json:"confidence"`
	Pages      int     `json:"pages"`
}

// StatusError is returned when the OCR service answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("OCR service error: %d - %s", e.StatusCode, e.Body)
}

// Config configures the OCR client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the OCR service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds an OCR client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 300 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}
}

type processResponse struct {
	Text        string  `json:"text"`
	Lines       []Line  `json:"lines"`
	Confidence  float64 `json:"confidence"`
	Pages       int     `json:"pages"`
	PageResults []Page  `json:"page_results"`
}

// Extract uploads data for recognition and returns the normalised result.
func (c *Client) Extract(ctx context.Context, filename string, data []byte, languages []string) (Result, error) {
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	body, contentType, err := multipartBody(filename, data, languages)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/process", body)
	if err != nil {
		return Result{}, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var payload processResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode ocr response: %w", err)
	}

	if len(payload.PageResults) > 0 {
		result := Combine(payload.PageResults)
		if strings.TrimSpace(payload.Text) != "" {
			result.Text = payload.Text
		}
		return result, nil
	}

	return Result{
		Text:       payload.Text,
		Lines:      payload.Lines,
		Confidence: payload.Confidence,
		Pages:      1,
	}, nil
}

// Combine merges per-page results in order. Texts are joined with a blank
// line and confidence is the mean across pages.
func Combine(pages []Page) Result {
	if len(pages) == 0 {
		return Result{}
	}

	texts := make([]string, 0, len(pages))
	lines := make([]Line, 0)
	total := 0.0
	for _, page := range pages {
		texts = append(texts, page.Text)
		lines = append(lines, page.Lines...)
		total += page.Confidence
	}

	return Result{
		Text:       strings.Join(texts, "\n\n"),
		Lines:      lines,
		Confidence: total / float64(len(pages)),
		Pages:      len(pages),
	}
}

func multipartBody(filename string, data []byte, languages []string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create ocr form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write ocr form file: %w", err)
	}

	encoded, err := json.Marshal(languages)
	if err != nil {
		return nil, "", fmt.Errorf("encode ocr languages: %w", err)
	}
	if err := writer.WriteField("languages", string(encoded)); err != nil {
		return nil, "", fmt.Errorf("write ocr languages: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close ocr form: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}
