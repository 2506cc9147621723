package prediction

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Load reads the classifier and scaler artifacts once. If either one is
// missing or unreadable the failure is logged and the returned engine uses
// the rule table for its whole lifetime. Load never fails.
func Load(modelPath, scalerPath string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	clf, err := LoadClassifier(modelPath)
	if err != nil {
		logger.Warn("classifier unavailable, using rule-based prediction", "path", modelPath, "error", err)
		return NewEngine(nil, nil, logger)
	}

	scaler, err := LoadScaler(scalerPath)
	if err != nil {
		logger.Warn("scaler unavailable, using rule-based prediction", "path", scalerPath, "error", err)
		return NewEngine(nil, nil, logger)
	}

	logger.Info("classifier and scaler loaded", "model", modelPath, "scaler", scalerPath)
	return NewEngine(clf, scaler, logger)
}

// LoadClassifier decodes a classifier artifact from path.
func LoadClassifier(path string) (Classifier, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	return decodeClassifier(data)
}

// LoadScaler decodes a scaler artifact from path.
func LoadScaler(path string) (*Scaler, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}

	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// readArtifact returns the file contents, transparently decompressing
// artifacts stored with a .gz suffix.
func readArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("artifact path is empty")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip artifact: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	return io.ReadAll(r)
}
