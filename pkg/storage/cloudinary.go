package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

const cloudinaryRawResource = "raw"

// CloudinaryConfig contains credentials required to talk to Cloudinary.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// DeliveryURL overrides https://res.cloudinary.com/<cloud>.
	DeliveryURL string
	HTTPClient  *http.Client
}

// Cloudinary stores files as raw Cloudinary assets. Keys are public ids.
type Cloudinary struct {
	client   *cloudinary.Cloudinary
	folder   string
	delivery string
	http     *http.Client
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCloudinary constructs a Cloudinary store.
func NewCloudinary(cfg CloudinaryConfig, logger zerolog.Logger) (*Cloudinary, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	delivery := strings.TrimRight(cfg.DeliveryURL, "/")
	if delivery == "" {
		delivery = "https://res.cloudinary.com/" + cfg.CloudName
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Cloudinary{
		client:   cld,
		folder:   strings.Trim(cfg.Folder, "/"),
		delivery: delivery,
		http:     httpClient,
		logger:   logger.With().Str("component", "cloudinary").Logger(),
		now:      time.Now,
	}, nil
}

// Save uploads data as a raw asset and returns its public id.
func (c *Cloudinary) Save(ctx context.Context, data []byte, filename, folder string) (string, error) {
	publicID := ObjectKey(strings.Trim(c.folder+"/"+folder, "/"), filename, c.now())

	result, err := c.client.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: cloudinaryRawResource,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	c.logger.Info().Str("public_id", result.PublicID).Msg("file uploaded to cloudinary")
	return publicID, nil
}

// Get downloads the raw asset from the delivery host.
func (c *Cloudinary) Get(ctx context.Context, key string) ([]byte, error) {
	assetURL := fmt.Sprintf("%s/%s/upload/%s", c.delivery, cloudinaryRawResource, escapePublicID(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build asset request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download asset: unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// Delete destroys the asset and reports whether it existed.
func (c *Cloudinary) Delete(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		ResourceType: cloudinaryRawResource,
	})
	if err != nil {
		return false, fmt.Errorf("failed to destroy asset: %w", err)
	}
	return result.Result == "ok", nil
}

func escapePublicID(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
