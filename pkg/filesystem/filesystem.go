package filesystem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/partner-addons/addon-publisher/pkg/logger"
)

// GetFilesystem returns a filesystem rooted at the provided path
func GetFilesystem(path string) billy.Filesystem {
	return osfs.New(path)
}

// GetAbsPath returns the absolute path given the relative path within a filesystem
func GetAbsPath(fs billy.Filesystem, path string) string {
	return filepath.Join(fs.Root(), path)
}

// PathExists checks if a path exists on the filesystem or returns an error
func PathExists(ctx context.Context, fs billy.Filesystem, path string) (bool, error) {
	absPath := GetAbsPath(fs, path)
	logger.Log(ctx, slog.LevelDebug, "checking if path exists", slog.String("absPath", absPath))

	_, err := os.Stat(absPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CreateFileAndDirs creates a file on the filesystem and all relevant directories along the way if they do not exist.
// The file that is created must be closed by the caller
func CreateFileAndDirs(fs billy.Filesystem, path string) (billy.File, error) {
	if err := fs.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, err
	}
	return fs.Create(path)
}

// RemoveAll removes all files and directories located at the path
func RemoveAll(fs billy.Filesystem, path string) error {
	return os.RemoveAll(GetAbsPath(fs, path))
}

// CopyFile copies a file from srcPath in srcFs to dstPath in dstFs.
// It creates any relevant directories along the way
func CopyFile(ctx context.Context, srcFs billy.Filesystem, srcPath string, dstFs billy.Filesystem, dstPath string) error {
	srcExists, err := PathExists(ctx, srcFs, srcPath)
	if err != nil {
		return err
	}
	if !srcExists {
		return fmt.Errorf("cannot copy nonexistent file from %s to %s", srcPath, dstPath)
	}
	srcFile, err := srcFs.Open(srcPath)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := CreateFileAndDirs(dstFs, dstPath)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err = io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("encountered error while trying to copy from %s to %s: %s", srcPath, dstPath, err)
	}
	return nil
}
