package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// InputFetcher downloads the forecast input workbook from a Drive folder.
// With an empty FileName the most recently modified .xlsx file is used.
type InputFetcher struct {
	service    *Service
	folderPath string
	fileName   string
}

func NewInputFetcher(s *Service, folderPath, fileName string) *InputFetcher {
	return &InputFetcher{service: s, folderPath: folderPath, fileName: fileName}
}

// pickWorkbook selects the input among files listed newest first.
func pickWorkbook(files []*File, name string) (*File, error) {
	for _, f := range files {
		if f.MimeType == folderMimeType {
			continue
		}
		if name != "" {
			if f.Name == name {
				return f, nil
			}
			continue
		}
		if strings.EqualFold(filepath.Ext(f.Name), ".xlsx") {
			return f, nil
		}
	}
	if name != "" {
		return nil, fmt.Errorf("file %s not found in drive folder", name)
	}
	return nil, fmt.Errorf("no .xlsx file found in drive folder")
}

// Fetch downloads the workbook to dest.
func (f *InputFetcher) Fetch(ctx context.Context, dest string) error {
	folderID, err := f.service.FindFolderByPath(ctx, f.folderPath)
	if err != nil {
		return err
	}
	files, err := f.service.ListFiles(ctx, folderID)
	if err != nil {
		return err
	}
	file, err := pickWorkbook(files, f.fileName)
	if err != nil {
		return fmt.Errorf("%w (folder %s)", err, f.folderPath)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", dest, err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed creating %s: %w", dest, err)
	}
	if err := f.service.DownloadFile(ctx, file.ID, out); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed writing %s: %w", dest, err)
	}

	log.Info().Str("file", file.Name).Str("modified", file.ModifiedTime).Str("dest", dest).Msg("downloaded forecast input from drive")
	return nil
}
