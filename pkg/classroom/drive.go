package classroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Google-native MIME types that must be exported rather than downloaded.
const (
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeGoogleSlides = "application/vnd.google-apps.presentation"
)

var exportFormats = map[string]string{
	MimeGoogleDoc:    "text/plain",
	MimeGoogleSheet:  "text/csv",
	MimeGoogleSlides: "text/plain",
}

var (
	// ErrAccessDenied indicates the token cannot read the file.
	ErrAccessDenied = errors.New("access denied to drive file")
	// ErrFileNotFound indicates the file was deleted or moved.
	ErrFileNotFound = errors.New("drive file not found")
)

// File is the Drive metadata needed to download a file.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// Exported reports whether the file is a Google-native document.
func (f File) Exported() bool {
	_, ok := exportFormats[f.MimeType]
	return ok
}

// DriveConfig configures the Drive client. BaseURL is the API host; the
// drive/v3 path is appended.
type DriveConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxBytes   int64
	HTTPClient *http.Client
}

// DriveClient downloads student attachments from Google Drive with a
// caller-supplied OAuth access token.
type DriveClient struct {
	endpoint  string
	maxBytes  int64
	timeout   time.Duration
	transport http.RoundTripper
}

// NewDriveClient builds a Drive client.
func NewDriveClient(cfg DriveConfig) *DriveClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var transport http.RoundTripper
	if cfg.HTTPClient != nil {
		transport = cfg.HTTPClient.Transport
		if cfg.HTTPClient.Timeout > 0 {
			timeout = cfg.HTTPClient.Timeout
		}
	}

	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}

	return &DriveClient{
		endpoint:  baseURL + "/drive/v3/",
		maxBytes:  maxBytes,
		timeout:   timeout,
		transport: transport,
	}
}

// service binds a Drive service to one user's access token.
func (c *DriveClient) service(ctx context.Context, token string) (*drive.Service, error) {
	httpClient := &http.Client{
		Timeout: c.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.transport,
		},
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient), option.WithEndpoint(c.endpoint))
	if err != nil {
		return nil, fmt.Errorf("build drive service: %w", err)
	}
	return svc, nil
}

// Metadata fetches id, name and MIME type for fileID.
func (c *DriveClient) Metadata(ctx context.Context, token, fileID string) (File, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return File{}, err
	}

	meta, err := svc.Files.Get(fileID).
		Fields("id", "name", "mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return File{}, classifyDriveError(err)
	}

	return File{ID: meta.Id, Name: meta.Name, MimeType: meta.MimeType}, nil
}

// Download returns the file content. Google-native documents are exported to
// plain text or CSV.
func (c *DriveClient) Download(ctx context.Context, token string, file File) ([]byte, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	if format, ok := exportFormats[file.MimeType]; ok {
		resp, err = svc.Files.Export(file.ID, format).Context(ctx).Download()
	} else {
		resp, err = svc.Files.Get(file.ID).SupportsAllDrives(true).Context(ctx).Download()
	}
	if err != nil {
		return nil, classifyDriveError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read drive response: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("drive file exceeds %d bytes", c.maxBytes)
	}
	return data, nil
}

func classifyDriveError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("drive request failed: %w", err)
	}

	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAccessDenied
	case http.StatusNotFound:
		return ErrFileNotFound
	default:
		message := apiErr.Message
		if message == "" {
			message = strings.TrimSpace(apiErr.Body)
		}
		return fmt.Errorf("drive api error (%d): %s", apiErr.Code, message)
	}
}
