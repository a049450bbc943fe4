// Package files provides storage backends for the gateway's file routes.
// Cloud backends live behind the same interface; this package ships the
// local-disk implementation used in development and single-node deployments.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	httptransport "filegate/internal/transport/http"
	id "filegate/pkg/domain"
	dErrors "filegate/pkg/domain-errors"
	"filegate/pkg/requestcontext"
)

const metaSuffix = ".meta.json"

// LocalStore keeps file content on disk under root/<tenant>/<file id>, with
// a JSON sidecar per object for metadata. Tenant isolation is directory-level.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

// NewLocal creates the root directory if needed and returns a store over it.
func NewLocal(root string, logger *slog.Logger) (*LocalStore, error) {
	if root == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &LocalStore{root: root, logger: logger}, nil
}

func (s *LocalStore) Upload(ctx context.Context, tenant id.TenantID, name, contentType string, content io.Reader) (*httptransport.FileInfo, error) {
	dir := s.tenantDir(tenant)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}

	fileID := "f_" + uuid.NewString()
	path := filepath.Join(dir, fileID)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create object file: %w", err)
	}
	size, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write object content: %w", err)
	}

	info := &httptransport.FileInfo{
		ID:          fileID,
		Name:        name,
		Size:        size,
		ContentType: contentType,
		UploadedAt:  requestcontext.Now(ctx).UTC(),
	}
	if err := s.writeMeta(path, info); err != nil {
		os.Remove(path)
		return nil, err
	}
	return info, nil
}

func (s *LocalStore) Download(ctx context.Context, tenant id.TenantID, fileID string) (*httptransport.FileInfo, io.ReadCloser, error) {
	path, err := s.objectPath(tenant, fileID)
	if err != nil {
		return nil, nil, err
	}

	info, err := s.readMeta(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return nil, nil, fmt.Errorf("open object file: %w", err)
	}
	return info, f, nil
}

func (s *LocalStore) Delete(ctx context.Context, tenant id.TenantID, fileID string) error {
	path, err := s.objectPath(tenant, fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return fmt.Errorf("remove object file: %w", err)
	}
	if err := os.Remove(path + metaSuffix); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("orphaned metadata sidecar", "path", path+metaSuffix, "error", err)
	}
	return nil
}

func (s *LocalStore) List(ctx context.Context, tenant id.TenantID) ([]httptransport.FileInfo, error) {
	entries, err := os.ReadDir(s.tenantDir(tenant))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tenant dir: %w", err)
	}

	var infos []httptransport.FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), metaSuffix) {
			continue
		}
		info, err := s.readMeta(filepath.Join(s.tenantDir(tenant), entry.Name()))
		if err != nil {
			s.logger.Warn("skipping object with unreadable metadata", "file_id", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, *info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UploadedAt.Before(infos[j].UploadedAt) })
	return infos, nil
}

func (s *LocalStore) tenantDir(tenant id.TenantID) string {
	return filepath.Join(s.root, string(tenant))
}

// objectPath validates the id before joining it into a path so a crafted
// file id cannot escape the tenant directory.
func (s *LocalStore) objectPath(tenant id.TenantID, fileID string) (string, error) {
	if fileID == "" || fileID != filepath.Base(fileID) || strings.HasPrefix(fileID, ".") {
		return "", dErrors.New(dErrors.CodeValidation, "invalid file id")
	}
	return filepath.Join(s.tenantDir(tenant), fileID), nil
}

func (s *LocalStore) writeMeta(path string, info *httptransport.FileInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+metaSuffix, data, 0o644); err != nil {
		return fmt.Errorf("write metadata sidecar: %w", err)
	}
	return nil
}

func (s *LocalStore) readMeta(path string) (*httptransport.FileInfo, error) {
	data, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return nil, fmt.Errorf("read metadata sidecar: %w", err)
	}
	var info httptransport.FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode metadata sidecar: %w", err)
	}
	return &info, nil
}
