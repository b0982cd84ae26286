package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rtl-ml/radio"
	"rtl-ml/utils"
)

const (
	recordSuffix     = ".iqz.json"
	reportFile       = "validation_report.json"
	timestampPattern = "20060102_150405.000000"
)

type recordFile struct {
	Record
	Encoding    string `json:"encoding"`
	SampleCount int    `json:"sample_count"`
	Payload     []byte `json:"payload"`
}

// FileStore keeps records as one JSON document per capture under
// <dir>/<label>/<label>_<timestamp>.iqz.json, with the validation report at
// <dir>/validation_report.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := utils.CreateFolder(dir); err != nil {
		return nil, fmt.Errorf("error creating dataset directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the dataset root.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes a record and returns its path. Missing IDs and timestamps are filled in.
func (s *FileStore) Save(ctx context.Context, rec *Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec.Label == "" {
		return "", errors.New("record has no label")
	}
	if len(rec.Samples) == 0 {
		return "", errors.New("record has no samples")
	}
	if rec.ID == "" {
		rec.ID = utils.NewRecordID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Duration == 0 && rec.SampleRate > 0 {
		rec.Duration = float64(len(rec.Samples)) / rec.SampleRate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	labelDir := filepath.Join(s.dir, safeName(rec.Label))
	if err := utils.CreateFolder(labelDir); err != nil {
		return "", fmt.Errorf("error creating label directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s", safeName(rec.Label), rec.Timestamp.UTC().Format(timestampPattern))
	path := filepath.Join(labelDir, name+recordSuffix)
	for n := 1; fileExists(path); n++ {
		path = filepath.Join(labelDir, fmt.Sprintf("%s_%d%s", name, n, recordSuffix))
	}

	data, err := json.Marshal(recordFile{
		Record:      *rec,
		Encoding:    SampleEncoding,
		SampleCount: len(rec.Samples),
		Payload:     EncodeSamples(rec.Samples),
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling record: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("error writing record: %w", err)
	}
	return path, nil
}

// Load reads one record file.
func (s *FileStore) Load(path string) (Record, error) {
	return ReadRecord(path)
}

// ReadRecord reads a record file written by FileStore.Save.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("error reading record: %w", err)
	}
	var file recordFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Record{}, fmt.Errorf("error unmarshaling record %s: %w", path, err)
	}
	if file.Encoding != SampleEncoding {
		return Record{}, fmt.Errorf("record %s uses unsupported encoding %q", path, file.Encoding)
	}
	samples, err := DecodeSamples(file.Payload)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: %w", path, err)
	}
	if len(samples) != file.SampleCount {
		return Record{}, fmt.Errorf("record %s holds %d samples, header says %d", path, len(samples), file.SampleCount)
	}
	rec := file.Record
	rec.Samples = samples
	return rec, nil
}

// Labels lists the label directories present in the store.
func (s *FileStore) Labels() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var labels []string
	for _, entry := range entries {
		// Skip hidden directories
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			labels = append(labels, entry.Name())
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// List returns the record paths stored under label, oldest first.
func (s *FileStore) List(label string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, safeName(label)))
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), recordSuffix) {
			paths = append(paths, filepath.Join(s.dir, safeName(label), entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Walk loads every record of every label and passes it to fn. Unreadable
// records are logged and skipped.
func (s *FileStore) Walk(ctx context.Context, fn func(path string, rec Record) error) error {
	logger := utils.GetLogger()
	labels, err := s.Labels()
	if err != nil {
		return err
	}
	for _, label := range labels {
		paths, err := s.List(label)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.Load(path)
			if err != nil {
				logger.WarnContext(ctx, "skipping unreadable record", "path", path, "error", err)
				continue
			}
			if err := fn(path, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// SaveReport writes the validation report next to the records.
func (s *FileStore) SaveReport(ctx context.Context, report radio.ValidationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling validation report: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(filepath.Join(s.dir, reportFile), data, 0644)
}

// LoadReport reads the validation report, returning an empty report when none exists.
func (s *FileStore) LoadReport() (radio.ValidationReport, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, reportFile))
	if errors.Is(err, os.ErrNotExist) {
		return radio.ValidationReport{}, nil
	}
	if err != nil {
		return nil, err
	}
	var report radio.ValidationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("error unmarshaling validation report: %w", err)
	}
	return report, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// safeName keeps letters, digits, '_' and '-' so labels map to portable
// directory names.
func safeName(label string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_' || r == '-':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, label)
	if safe == "" {
		safe = "unlabelled"
	}
	return safe
}
