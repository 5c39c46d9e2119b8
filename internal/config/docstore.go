package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DocStore manages the per-group JSON config documents under a data
// directory, one flat document per logical group ("music", "ai", ...).
// Documents are created on first access and saved synchronously after
// every mutation.
type DocStore struct {
	dir string

	mu   sync.Mutex
	docs map[string]*Document
}

// NewDocStore creates a document store rooted at dir, creating the
// directory if needed.
func NewDocStore(dir string) (*DocStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: failed to create data dir %s: %w", dir, err)
	}
	return &DocStore{dir: dir, docs: make(map[string]*Document)}, nil
}

// Open returns the named document, loading it from disk on first access.
// Defaults are merged under any persisted values: a key already on disk
// keeps its persisted value; missing keys get the default and the merged
// document is written back immediately.
func (s *DocStore) Open(name string, defaults map[string]interface{}) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.docs[name]; ok {
		return doc, nil
	}

	doc := &Document{
		name: name,
		path: filepath.Join(s.dir, name+".json"),
		data: make(map[string]interface{}),
	}

	if err := doc.load(); err != nil {
		return nil, err
	}
	for k, v := range defaults {
		if _, ok := doc.data[k]; !ok {
			doc.data[k] = v
		}
	}
	if err := doc.save(); err != nil {
		return nil, err
	}

	s.docs[name] = doc
	return doc, nil
}

// Document is one named flat JSON config document. All access is
// mutex-guarded; Set persists immediately.
type Document struct {
	name string
	path string

	mu   sync.Mutex
	data map[string]interface{}
}

func (d *Document) load() error {
	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: failed to read document %s: %w", d.name, err)
	}
	if err := json.Unmarshal(raw, &d.data); err != nil {
		return fmt.Errorf("config: document %s is corrupt: %w", d.name, err)
	}
	return nil
}

func (d *Document) save() error {
	raw, err := json.MarshalIndent(d.data, "", "  ")
	if err != nil {
		return fmt.Errorf("config: failed to encode document %s: %w", d.name, err)
	}
	if err := os.WriteFile(d.path, raw, 0o644); err != nil {
		return fmt.Errorf("config: failed to write document %s: %w", d.name, err)
	}
	return nil
}

// Get returns the raw value for key.
func (d *Document) Get(key string) (interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.data[key]
	return v, ok
}

// GetString returns the value for key as a string, or fallback when the
// key is absent or not a string.
func (d *Document) GetString(key, fallback string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.data[key].(string); ok {
		return s
	}
	return fallback
}

// GetFloat returns the value for key as a float64, or fallback. JSON
// numbers always decode to float64.
func (d *Document) GetFloat(key string, fallback float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.data[key].(float64); ok {
		return f
	}
	return fallback
}

// StringMap returns the value for key as a string→string map. Values of
// other types are skipped. Returns an empty map when the key is absent.
func (d *Document) StringMap(key string) map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]string)
	raw, ok := d.data[key].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// Set stores the value under key and saves the document synchronously.
func (d *Document) Set(key string, value interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = value
	return d.save()
}

// SetMapEntry updates one entry of the string map stored under key and
// saves. The map is created if absent.
func (d *Document) SetMapEntry(key, entry, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.data[key].(map[string]interface{})
	if !ok {
		m = make(map[string]interface{})
		d.data[key] = m
	}
	m[entry] = value
	return d.save()
}

// Save writes the document to disk. Set and SetMapEntry already save;
// Save exists for callers that mutate values obtained via Get.
func (d *Document) Save() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.save()
}
