package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FileProperties is what a managed file service reports after a write.
type FileProperties struct {
	Name         string
	URL          string
	Size         int64
	LastModified time.Time
}

// FileService is a managed file store owned by the hosting runtime.
type FileService interface {
	Write(ctx context.Context, name string, data []byte) (FileProperties, error)
}

// DirFileService is a FileService rooted at a local directory. URLs are the
// public URL prefix joined with the file name, or file:// paths without one.
type DirFileService struct {
	root      string
	publicURL string
}

// NewDirFileService creates the root directory if needed.
func NewDirFileService(root, publicURL string) (*DirFileService, error) {
	if root == "" {
		return nil, errors.New("files storage: directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("files storage: create %s: %w", root, err)
	}
	return &DirFileService{root: root, publicURL: publicURL}, nil
}

// Write replaces name atomically through a temp file and rename.
func (s *DirFileService) Write(ctx context.Context, name string, data []byte) (FileProperties, error) {
	if err := ctx.Err(); err != nil {
		return FileProperties{}, err
	}
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return FileProperties{}, fmt.Errorf("files storage: %q is outside %s", name, s.root)
	}
	target := filepath.Join(s.root, local)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return FileProperties{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return FileProperties{}, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return FileProperties{}, err
	}
	if err := tmp.Close(); err != nil {
		return FileProperties{}, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return FileProperties{}, err
	}

	info, err := os.Stat(target)
	if err != nil {
		return FileProperties{}, err
	}

	url := "file://" + filepath.ToSlash(target)
	if s.publicURL != "" {
		url = joinURL(s.publicURL, name)
	}
	return FileProperties{
		Name:         name,
		URL:          url,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}, nil
}

// FilesWriter stores exports through a FileService.
type FilesWriter struct {
	svc         FileService
	prefix      string
	contentType string
	logger      *zap.Logger
}

// NewFilesWriter wraps svc.
func NewFilesWriter(svc FileService, cfg Config, logger *zap.Logger) *FilesWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilesWriter{svc: svc, prefix: cfg.Prefix, contentType: contentType(cfg), logger: logger}
}

func (w *FilesWriter) Name() string { return ProviderFiles }

// Write stores data as prefix/filename.
func (w *FilesWriter) Write(ctx context.Context, filename string, data []byte) (*Result, error) {
	if err := validateKey(w.prefix, filename); err != nil {
		return nil, &Error{Backend: ProviderFiles, Op: "write", Type: "invalid_name", Err: err}
	}
	name := ObjectKey(w.prefix, filename)

	props, err := w.svc.Write(ctx, name, data)
	if err != nil {
		typ := "storage_error"
		if errors.Is(err, os.ErrPermission) {
			typ = "access_denied"
		}
		return nil, &Error{Backend: ProviderFiles, Op: "write", Type: typ, Err: err}
	}

	w.logger.Info("Stored export in file service",
		zap.String("name", name),
		zap.Int64("bytes", props.Size))

	return &Result{
		URL: props.URL,
		Properties: Properties{
			Size:         props.Size,
			ContentType:  w.contentType,
			LastModified: props.LastModified,
		},
		StorageType: ProviderFiles,
		Location:    name,
	}, nil
}
