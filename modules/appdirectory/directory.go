package appdirectory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/desktopagent"
	"github.com/GoCodeAlone/desktopagent/fdc3"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const maxCatalogSize = 16 << 20

// catalog is an immutable snapshot of the loaded records. App ids are
// matched case-insensitively.
type catalog struct {
	apps     []*fdc3.AppDescriptor
	byID     map[string]*fdc3.AppDescriptor
	loadedAt time.Time
}

// Directory serves app records loaded from a file or an HTTP endpoint.
// File catalogs stay until Load is called again; HTTP catalogs are fetched
// again on access once CacheTTL has elapsed.
type Directory struct {
	source    string
	remote    bool
	format    string
	ttl       time.Duration
	client    *http.Client
	validator *Validator
	logger    desktopagent.Logger

	current   atomic.Pointer[catalog]
	refreshMu sync.Mutex
	now       func() time.Time
}

// NewDirectory creates a directory for cfg.Source. The catalog is not read
// until Load. A nil client gets one bounded by cfg.HTTPTimeout.
func NewDirectory(cfg *Config, logger desktopagent.Logger, client *http.Client) (*Directory, error) {
	if cfg.Source == "" {
		return nil, ErrNoSource
	}
	if logger == nil {
		logger = desktopagent.NopLogger()
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	d := &Directory{
		format: strings.ToLower(cfg.Format),
		ttl:    cfg.CacheTTL,
		client: client,
		logger: logger,
		now:    time.Now,
	}

	source, remote, err := resolveSource(cfg.Source)
	if err != nil {
		return nil, err
	}
	d.source, d.remote = source, remote

	if !cfg.SkipValidation {
		if d.validator, err = NewValidator(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func resolveSource(source string) (string, bool, error) {
	if !strings.Contains(source, "://") {
		return filepath.Clean(source), false, nil
	}
	u, err := url.Parse(source)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrUnsupportedSource, err)
	}
	switch u.Scheme {
	case "http", "https":
		return u.String(), true, nil
	case "file":
		return filepath.Clean(u.Path), false, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedSource, u.Scheme)
	}
}

// Source returns the resolved file path or URL.
func (d *Directory) Source() string {
	return d.source
}

// IsRemote reports whether the catalog is fetched over HTTP.
func (d *Directory) IsRemote() bool {
	return d.remote
}

// Load reads and validates the catalog and replaces the served snapshot.
// On failure the previous snapshot stays in place.
func (d *Directory) Load(ctx context.Context) error {
	data, err := d.read(ctx)
	if err != nil {
		return err
	}
	apps, err := ParseCatalog(data, d.detectFormat(), d.validator)
	if err != nil {
		return err
	}
	next, err := newCatalog(apps, d.now())
	if err != nil {
		return err
	}
	d.current.Store(next)
	d.logger.Debug("App directory loaded", "source", d.source, "apps", len(apps))
	return nil
}

func (d *Directory) detectFormat() string {
	if d.format != "" && d.format != FormatAuto {
		return d.format
	}
	path := d.source
	if d.remote {
		if u, err := url.Parse(d.source); err == nil {
			path = u.Path
		}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func (d *Directory) read(ctx context.Context) ([]byte, error) {
	if !d.remote {
		data, err := os.ReadFile(d.source)
		if err != nil {
			return nil, fmt.Errorf("failed to read app directory: %w", err)
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch app directory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch app directory: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read app directory: %w", err)
	}
	return data, nil
}

func (d *Directory) snapshot(ctx context.Context) (*catalog, error) {
	current := d.current.Load()
	if current != nil && (!d.remote || d.now().Sub(current.loadedAt) < d.ttl) {
		return current, nil
	}

	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	// another caller may have refreshed while we waited
	if latest := d.current.Load(); latest != current {
		return latest, nil
	}
	if err := d.Load(ctx); err != nil {
		if current == nil {
			return nil, fmt.Errorf("%w: %w", ErrNotLoaded, err)
		}
		d.logger.Warn("Serving stale app directory", "source", d.source, "error", err)
		return current, nil
	}
	return d.current.Load(), nil
}

// GetApps returns every record in catalog order.
func (d *Directory) GetApps(ctx context.Context) ([]*fdc3.AppDescriptor, error) {
	c, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return append([]*fdc3.AppDescriptor(nil), c.apps...), nil
}

// GetApp returns the record of appID, or an AppNotFound error.
func (d *Directory) GetApp(ctx context.Context, appID string) (*fdc3.AppDescriptor, error) {
	c, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	app, ok := c.byID[strings.ToLower(appID)]
	if !ok {
		return nil, fdc3.NewError(fdc3.CodeAppNotFound, "app %q is not in the directory", appID)
	}
	return app, nil
}

// Len returns the number of loaded records.
func (d *Directory) Len() int {
	if c := d.current.Load(); c != nil {
		return len(c.apps)
	}
	return 0
}

func newCatalog(apps []*fdc3.AppDescriptor, loadedAt time.Time) (*catalog, error) {
	c := &catalog{apps: apps, byID: make(map[string]*fdc3.AppDescriptor, len(apps)), loadedAt: loadedAt}
	for _, app := range apps {
		key := strings.ToLower(app.AppID)
		if _, exists := c.byID[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAppID, app.AppID)
		}
		c.byID[key] = app
	}
	return c, nil
}

// ParseCatalog decodes a catalog document. The document is either an array
// of records or an object with an "applications" array, as served by the
// FDC3 App Directory API. JSON may carry comments. A nil validator skips
// schema checks.
func ParseCatalog(data []byte, format string, validator *Validator) ([]*fdc3.AppDescriptor, error) {
	switch format {
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeCatalog, err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeCatalog, err)
		}
		data = converted
	case FormatJSON, FormatAuto, "":
		data = jsonc.ToJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	records, err := splitRecords(data)
	if err != nil {
		return nil, err
	}

	apps := make([]*fdc3.AppDescriptor, 0, len(records))
	for i, record := range records {
		if validator != nil {
			if err := validator.ValidateBytes(record); err != nil {
				return nil, fmt.Errorf("%w: record %d: %w", ErrInvalidRecord, i, err)
			}
		}
		app := &fdc3.AppDescriptor{}
		if err := json.Unmarshal(record, app); err != nil {
			return nil, fmt.Errorf("%w: record %d: %w", ErrDecodeCatalog, i, err)
		}
		if app.AppID == "" {
			return nil, fmt.Errorf("%w: record %d has no appId", ErrInvalidRecord, i)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

func splitRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecodeCatalog, err)
		}
		return records, nil
	}

	var envelope struct {
		Applications []json.RawMessage `json:"applications"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeCatalog, err)
	}
	return envelope.Applications, nil
}
