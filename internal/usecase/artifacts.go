package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/hszk-dev/abrpack/internal/domain/repository"
	"github.com/hszk-dev/abrpack/internal/transcoder"
)

const (
	uploadsDir = "uploads"
	hlsDir     = "hls"
)

// Content types used when mirroring a package to object storage.
var contentTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".m4s":  "video/iso.segment",
	".mp4":  "video/mp4",
}

func contentTypeFor(name string) string {
	if ct, ok := contentTypes[filepath.Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// hlsOutputDir returns <root>/hls/<id>.
func hlsOutputDir(root string, id uuid.UUID) string {
	return filepath.Join(root, hlsDir, id.String())
}

// hlsManifestURL returns the public path of a package's master playlist.
func hlsManifestURL(id uuid.UUID) string {
	return "/" + path.Join(hlsDir, id.String(), "master.m3u8")
}

// storagePrefix returns the object key prefix of a mirrored package.
func storagePrefix(id uuid.UUID) string {
	return path.Join(hlsDir, id.String()) + "/"
}

// checkInput verifies that p names a readable regular file.
func checkInput(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrInputNotFound, p)
		}
		return fmt.Errorf("stat input: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrInputNotRegular, p)
	}
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	return f.Close()
}

// moveFile renames src to dst, falling back to copy and remove across devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
			if err := copyFileContents(src, dst); err != nil {
				_ = os.Remove(dst)
				return fmt.Errorf("copy file across devices: %w", err)
			}
			if err := os.Remove(src); err != nil {
				return fmt.Errorf("remove source after copy: %w", err)
			}
			return nil
		}
		return fmt.Errorf("move file: %w", err)
	}
	return nil
}

func copyFileContents(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	dest, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(dest, source); err != nil {
		dest.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

// originalArtifacts lists the stored source files of an original-mode package:
// <root>/uploads/<id> and any <root>/uploads/<id>.<ext>.
func originalArtifacts(root string, id uuid.UUID) ([]string, error) {
	base := filepath.Join(root, uploadsDir, id.String())
	matches, err := filepath.Glob(base + ".*")
	if err != nil {
		return nil, fmt.Errorf("glob uploads: %w", err)
	}
	if _, err := os.Lstat(base); err == nil {
		matches = append([]string{base}, matches...)
	}
	return matches, nil
}

// mirrorDir uploads every regular file in dir under prefix. The master
// playlist goes last and is then checked, so a mirrored master implies the
// whole package is present.
func (s *packageService) mirrorDir(ctx context.Context, dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}

	var master string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if e.Name() == transcoder.MasterPlaylistName {
			master = e.Name()
			continue
		}
		if err := s.uploadFile(ctx, filepath.Join(dir, e.Name()), prefix+e.Name()); err != nil {
			return fmt.Errorf("upload %s: %w", e.Name(), err)
		}
	}
	if master == "" {
		return nil
	}

	key := prefix + master
	if err := s.uploadFile(ctx, filepath.Join(dir, master), key); err != nil {
		return fmt.Errorf("upload %s: %w", master, err)
	}
	ok, err := s.storage.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("verify %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("verify mirror: %w: %s", repository.ErrObjectNotFound, key)
	}
	return nil
}

func (s *packageService) uploadFile(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return s.storage.Upload(ctx, key, file, contentTypeFor(localPath))
}
