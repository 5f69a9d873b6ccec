// Package openapi turns the operations of an OpenAPI 3 document into tool
// contracts, so a catalogue can be described by an existing API document.
package openapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"toolhost/internal/core/errors"

	"github.com/getkin/kin-openapi/openapi3"
)

const maxSpecSizeBytes = 8 << 20 // 8 MiB

// LoadSpec reads and validates a document from a file path or http(s) URL.
func LoadSpec(ctx context.Context, source string) (*openapi3.T, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New(errors.CodeConfiguration, "openapi source is required")
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if isHTTPSource(source) {
		doc, err = loadSpecFromURL(ctx, loader, source)
	} else {
		if _, statErr := os.Stat(source); statErr != nil {
			return nil, errors.AddContext(errors.Wrap(statErr, errors.CodeConfiguration, "openapi spec not readable"), errors.CtxPath, source)
		}
		doc, err = loader.LoadFromFile(source)
	}
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeConfiguration, "load openapi spec"), errors.CtxPath, source)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeConfiguration, "validate openapi spec"), errors.CtxPath, source)
	}
	return doc, nil
}

// LoadSpecData parses an in-memory document.
func LoadSpecData(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "load openapi spec")
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "validate openapi spec")
	}
	return doc, nil
}

func isHTTPSource(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func loadSpecFromURL(ctx context.Context, loader *openapi3.Loader, source string) (*openapi3.T, error) {
	location, err := url.Parse(source)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecSizeBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxSpecSizeBytes {
		return nil, fmt.Errorf("spec exceeds %d bytes", maxSpecSizeBytes)
	}
	return loader.LoadFromDataWithPath(data, location)
}
