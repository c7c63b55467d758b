package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	VectorizerFile = "verifai_vectorizer.json"
	ModelFile      = "verifai_model.json"
	lockFile       = ".verifai_artifacts.lock"

	placeholderProbability = 0.93
)

var placeholderCorpus = []string{LabelAuthentic, LabelCounterfeit}

// Artifacts is a loaded vectorizer/model pair.
type Artifacts struct {
	Vectorizer *Vectorizer
	Model      *Model
	// Created is true when this call wrote a fresh placeholder pair.
	Created bool
}

// Store persists the classifier artifacts in a directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore returns a store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger.Named("artifact_store")}
}

// LoadOrCreate loads the saved pair, writing a placeholder pair first when
// either artifact is missing. An exclusive file lock serialises concurrent
// callers, so at most one of them creates the files.
func (s *Store) LoadOrCreate() (*Artifacts, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("classifier: create artifact dir: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, lockFile))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("classifier: lock artifact dir: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release artifact lock", zap.Error(err))
		}
	}()

	created := false
	missing, err := s.missing()
	if err != nil {
		return nil, err
	}
	if missing {
		s.logger.Info("creating placeholder classifier artifacts", zap.String("dir", s.dir))
		if err := s.writePlaceholder(); err != nil {
			return nil, err
		}
		created = true
	}

	var vec Vectorizer
	if err := readJSON(filepath.Join(s.dir, VectorizerFile), &vec); err != nil {
		return nil, err
	}
	var model Model
	if err := readJSON(filepath.Join(s.dir, ModelFile), &model); err != nil {
		return nil, err
	}
	if err := vec.validate(); err != nil {
		return nil, err
	}
	if err := model.validate(len(vec.IDF)); err != nil {
		return nil, err
	}

	s.logger.Info("classifier artifacts loaded", zap.Int("features", len(vec.IDF)), zap.Bool("created", created))
	return &Artifacts{Vectorizer: &vec, Model: &model, Created: created}, nil
}

func (s *Store) missing() (bool, error) {
	for _, name := range []string{VectorizerFile, ModelFile} {
		_, err := os.Stat(filepath.Join(s.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("classifier: stat %s: %w", name, err)
		}
	}
	return false, nil
}

func (s *Store) writePlaceholder() error {
	vec, err := FitVectorizer(placeholderCorpus)
	if err != nil {
		return err
	}
	model := PlaceholderModel(len(vec.IDF), placeholderProbability)

	if err := writeJSON(filepath.Join(s.dir, VectorizerFile), vec); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, ModelFile), model)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("classifier: encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("classifier: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("classifier: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("classifier: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("classifier: install %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("classifier: read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("classifier: decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
