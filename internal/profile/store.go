// File: internal/profile/store.go

// Package profile loads applicant profiles from disk. The store is
// read-only: the pipeline never writes profile data back.
package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// requiredKeys are the identity fields every usable profile must resolve;
// without them no application form can be completed.
var requiredKeys = []string{
	"user.personal_info.first_name",
	"user.personal_info.last_name",
	"user.contact_info.email_primary",
}

// FileStore serves profiles from JSON documents in a base directory. The
// user ID selects the file: <dir>/<userID>.json, or the configured single
// path when userID is empty.
type FileStore struct {
	path   string
	logger *zap.Logger
}

var _ schemas.ProfileStore = (*FileStore)(nil)

// NewFileStore wires a file-backed profile store.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("profile path is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &FileStore{path: path, logger: logger.Named("profile_store")}, nil
}

// GetProfile loads and decodes the profile document.
func (s *FileStore) GetProfile(_ context.Context, userID string) (*schemas.UserProfile, error) {
	path := s.path
	if userID != "" {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			path = filepath.Join(path, userID+".json")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var doc map[string]interface{}
	if err := jsonAPI.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", path, err)
	}

	profile := schemas.NewUserProfile(doc)

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := profile.Lookup(key); !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("profile %s is missing required identity fields: %s",
			path, strings.Join(missing, ", "))
	}

	s.logger.Debug("Profile loaded",
		zap.String("path", path),
		zap.Int("keys", len(profile.Keys())),
	)
	return profile, nil
}
