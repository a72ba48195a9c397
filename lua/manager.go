package lua

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaelod/flowmap/config"
	"github.com/samaelod/flowmap/types"
)

// maxRecentCopies bounds the name search in createRecent.
const maxRecentCopies = 10000

// SaveToRecent saves the dataset into the configured recent directory.
// See SaveToRecentDir.
func SaveToRecent(ds *types.Dataset, sourcePath string) (string, error) {
	appConfig, err := config.LoadDefault()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return SaveToRecentDir(ds, sourcePath, appConfig.RecentDir)
}

// SaveToRecentDir stores a Lua copy of sourcePath in recentDir as
// <name>_<n>.lua, n being the first free number. A Lua source is copied
// byte for byte; anything else is rendered from ds with WriteDataset.
func SaveToRecentDir(ds *types.Dataset, sourcePath, recentDir string) (string, error) {
	if recentDir == "" {
		recentDir = "recent"
	}
	if err := os.MkdirAll(recentDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recent directory: %w", err)
	}

	f, path, err := createRecent(recentDir, sourcePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(sourcePath), ".lua") {
		err = copyFile(f, sourcePath)
	} else {
		err = WriteDataset(f, ds)
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// createRecent opens the first free <name>_<n>.lua in dir. The file is
// created exclusively, so two saves never pick the same name.
func createRecent(dir, sourcePath string) (*os.File, string, error) {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	for n := 1; n <= maxRecentCopies; n++ {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.lua", stem, n))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("failed to create dataset file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("no free name for %s in %s", stem, dir)
}

func copyFile(dst io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}
