package course

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/singleflight"
)

const (
	resourceCacheEnvVar = "LECTUREPAD_CACHE_DIR"
	resourceCacheSubdir = "lecturepad/resources"
	resourceCacheTTL    = 24 * time.Hour
	resourceHTTPTimeout = 90 * time.Second
)

var extraneousWhitespace = regexp.MustCompile(`\s+`)

// ResourceCache downloads PDF lecture resources and extracts their plain
// text, keeping both on disk. Concurrent requests for one URL share a single
// download.
type ResourceCache struct {
	dir    string
	client *http.Client
	group  singleflight.Group
}

type resourceMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"lastModified"`
	CachedAt     time.Time `json:"cachedAt"`
}

// NewResourceCache prepares the cache directory. LECTUREPAD_CACHE_DIR overrides
// the user cache dir.
func NewResourceCache(client *http.Client) (*ResourceCache, error) {
	dir := os.Getenv(resourceCacheEnvVar)
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = filepath.Join(os.TempDir(), "lecturepad-cache")
		}
		dir = filepath.Join(base, resourceCacheSubdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: resourceHTTPTimeout}
	}
	return &ResourceCache{dir: dir, client: client}, nil
}

// Text returns the extracted text of the PDF at pdfURL.
func (c *ResourceCache) Text(ctx context.Context, pdfURL string) (string, error) {
	v, err, _ := c.group.Do(pdfURL, func() (interface{}, error) {
		return c.text(ctx, pdfURL)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *ResourceCache) text(ctx context.Context, pdfURL string) (string, error) {
	key := resourceKey(pdfURL)
	pdfPath, metaPath, textPath := c.pathsFor(key)

	if info, err := os.Stat(textPath); err == nil && time.Since(info.ModTime()) < resourceCacheTTL {
		if data, err := os.ReadFile(textPath); err == nil {
			return string(data), nil
		}
	}

	if err := c.fetch(ctx, pdfURL, pdfPath, metaPath); err != nil {
		if info, statErr := os.Stat(pdfPath); statErr != nil || info.Size() == 0 {
			return "", err
		}
	}
	text, err := extractPDFText(pdfPath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return "", err
	}
	return text, nil
}

func (c *ResourceCache) fetch(ctx context.Context, pdfURL, pdfPath, metaPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return err
	}
	meta, _ := readResourceMeta(metaPath)
	if info, err := os.Stat(pdfPath); err == nil && info.Size() > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		meta.CachedAt = time.Now().UTC()
		return writeResourceMeta(metaPath, meta)
	case http.StatusOK:
		partial := pdfPath + ".part"
		file, err := os.Create(partial)
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, resp.Body); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		if err := os.Rename(partial, pdfPath); err != nil {
			return err
		}
		return writeResourceMeta(metaPath, resourceMeta{
			URL:          pdfURL,
			ETag:         resp.Header.Get("Etag"),
			LastModified: resp.Header.Get("Last-Modified"),
			CachedAt:     time.Now().UTC(),
		})
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resource download failed: %s (%s)", resp.Status, string(body))
	}
}

func (c *ResourceCache) pathsFor(key string) (string, string, string) {
	return filepath.Join(c.dir, key+".pdf"), filepath.Join(c.dir, key+".meta"), filepath.Join(c.dir, key+".txt")
}

func resourceKey(pdfURL string) string {
	sum := sha1.Sum([]byte(pdfURL))
	return hex.EncodeToString(sum[:])
}

func extractPDFText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	content, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract pdf text: %w", err)
	}
	var builder strings.Builder
	if _, err := io.Copy(&builder, content); err != nil {
		return "", err
	}
	return strings.TrimSpace(extraneousWhitespace.ReplaceAllString(builder.String(), " ")), nil
}

func readResourceMeta(path string) (resourceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return resourceMeta{}, err
	}
	var meta resourceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return resourceMeta{}, err
	}
	return meta, nil
}

func writeResourceMeta(path string, meta resourceMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
