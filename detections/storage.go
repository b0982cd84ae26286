package detections

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

const (
	detectionsFile = "detections.json"
	reportFile     = "validation_report.json"
)

// FileStore keeps detections as a JSON array in <dir>/detections.json.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// loadDetectionsInternal loads all detections from the JSON file (without lock)
func (s *FileStore) loadDetectionsInternal() ([]models.Detection, error) {
	filePath := filepath.Join(s.dir, detectionsFile)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return []models.Detection{}, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading detections file: %v", err)
	}

	if len(data) == 0 {
		return []models.Detection{}, nil
	}

	var detections []models.Detection
	if err := json.Unmarshal(data, &detections); err != nil {
		return nil, fmt.Errorf("error unmarshaling detections: %v", err)
	}

	return detections, nil
}

// List loads all detections, oldest first.
func (s *FileStore) List(ctx context.Context) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadDetectionsInternal()
}

// Save appends a detection to the JSON file
func (s *FileStore) Save(ctx context.Context, detection models.Detection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	detections, err := s.loadDetectionsInternal()
	if err != nil {
		return err
	}

	if detection.ID == "" {
		detection.ID = utils.NewRecordID()
	}
	if detection.Timestamp.IsZero() {
		detection.Timestamp = time.Now()
	}

	detections = append(detections, detection)

	if err := utils.CreateFolder(s.dir); err != nil {
		return fmt.Errorf("error creating directory: %v", err)
	}

	data, err := json.MarshalIndent(detections, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling detections: %v", err)
	}

	return writeAtomic(filepath.Join(s.dir, detectionsFile), data)
}

// SaveReport writes the validation report as <dir>/validation_report.json.
func (s *FileStore) SaveReport(ctx context.Context, report radio.ValidationReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return SaveReport(filepath.Join(s.dir, reportFile), report)
}

func (s *FileStore) Close() error {
	return nil
}

// SaveReport writes a validation report to path.
func SaveReport(path string, report radio.ValidationReport) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := utils.CreateFolder(dir); err != nil {
			return fmt.Errorf("error creating directory: %v", err)
		}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling validation report: %v", err)
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("error writing temp file: %v", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error renaming temp file: %v", err)
	}
	return nil
}
