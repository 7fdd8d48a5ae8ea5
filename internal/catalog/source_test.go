package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/metal-toolbox/placer/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceDocumentLimit(t *testing.T) {
	const limit = 32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/memory.json":
			_, _ = w.Write([]byte(strings.Repeat("x", limit)))
		default:
			_, _ = w.Write([]byte(strings.Repeat("x", limit+1)))
		}
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 0, time.Second, logrus.New())
	assert.Equal(t, int64(maxDocumentBytes), source.maxBytes)

	source.maxBytes = limit

	doc, err := source.Read(context.Background(), model.ComponentMemory)
	require.NoError(t, err)
	assert.Len(t, doc.Data, limit)

	// an oversized document is reported rather than decoded truncated
	_, err = source.Read(context.Background(), model.ComponentTransceiver)
	assert.ErrorIs(t, err, ErrCatalogMalformed)
	assert.Contains(t, err.Error(), "document too large")
}
