package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/metal-toolbox/placer/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Format is the encoding of a catalog document.
type Format string

const (
	FormatJSON     Format = "json"
	FormatJSONC    Format = "jsonc"
	FormatYAML     Format = "yaml"
	FormatJSONZstd Format = "json+zstd"

	defaultHTTPTimeout = 30 * time.Second

	// limit catalog document response bodies to 64MiB
	maxDocumentBytes = 64 << 20
)

// extensions lists the catalog file extensions in lookup order.
var extensions = []struct {
	suffix string
	format Format
}{
	{".json", FormatJSON},
	{".jsonc", FormatJSONC},
	{".yaml", FormatYAML},
	{".yml", FormatYAML},
	{".json.zst", FormatJSONZstd},
}

// Document is a raw catalog document as read from a source.
type Document struct {
	ComponentType model.ComponentType
	Format        Format
	Origin        string
	Data          []byte
}

// Source provides the raw catalog document of a component type.
//
//go:generate mockgen -source source.go -destination=../fixtures/mock_source.go -package fixtures
type Source interface {
	// Read returns the catalog document for the component type,
	// ErrCatalogNotFound is returned when the document is missing or unreadable.
	Read(ctx context.Context, componentType model.ComponentType) (*Document, error)
}

// ParseFileName returns the component type and format of a catalog file name,
// ok is false when the name is not a catalog document.
func ParseFileName(path string) (componentType model.ComponentType, format Format, ok bool) {
	base := filepath.Base(path)

	// longest suffix wins so that .json.zst is not taken for a .zst file with a .json stem
	var match string

	for _, ext := range extensions {
		if strings.HasSuffix(base, ext.suffix) && len(ext.suffix) > len(match) {
			match = ext.suffix
			format = ext.format
		}
	}

	if match == "" {
		return "", "", false
	}

	ct, err := model.ParseComponentType(strings.TrimSuffix(base, match))
	if err != nil {
		return "", "", false
	}

	return ct, format, true
}

// DirSource reads catalog documents named <component type>.<ext> from a directory.
type DirSource struct {
	Dir string
}

// NewDirSource returns a DirSource for the directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Read implements the Source interface.
func (d *DirSource) Read(ctx context.Context, componentType model.ComponentType) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, ext := range extensions {
		path := filepath.Join(d.Dir, string(componentType)+ext.suffix)

		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, errors.Wrap(ErrCatalogNotFound, err.Error())
		}

		return &Document{
			ComponentType: componentType,
			Format:        ext.format,
			Origin:        path,
			Data:          data,
		}, nil
	}

	return nil, errors.Wrap(ErrCatalogNotFound, fmt.Sprintf("no catalog for %s in %s", componentType, d.Dir))
}

// HTTPSource fetches catalog documents named <base url>/<component type>.json.
type HTTPSource struct {
	baseURL  string
	client   *retryablehttp.Client
	maxBytes int64
}

// NewHTTPSource returns a HTTPSource with an otel instrumented retryable client,
// retries are disabled unless retryMax is greater than zero.
func NewHTTPSource(baseURL string, retryMax int, timeout time.Duration, logger *logrus.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	// hand back the final response so non 2xx statuses are reported as such
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}

	// disable default debug logging on the retryable client
	if logger.Level < logrus.DebugLevel {
		client.Logger = nil
	} else {
		client.Logger = logger
	}

	return &HTTPSource{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   client,
		maxBytes: maxDocumentBytes,
	}
}

// Read implements the Source interface.
func (h *HTTPSource) Read(ctx context.Context, componentType model.ComponentType) (*Document, error) {
	docURL := h.baseURL + "/" + string(componentType) + ".json"

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, errors.Wrap(ErrCatalogNotFound, err.Error())
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, errors.Wrap(ErrCatalogNotFound, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.Wrap(ErrCatalogNotFound, "URL: "+docURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("URL: %s, status code %s", docURL, resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(ErrCatalogNotFound, err.Error())
	}

	if int64(len(data)) > h.maxBytes {
		return nil, errors.Wrap(ErrCatalogMalformed, fmt.Sprintf("URL: %s, document too large, limit %d bytes", docURL, h.maxBytes))
	}

	return &Document{
		ComponentType: componentType,
		Format:        FormatJSONC,
		Origin:        docURL,
		Data:          data,
	}, nil
}
