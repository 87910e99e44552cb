// drive.go - Google Drive image store: one subfolder per sales portal

package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

const folderMIMEType = "application/vnd.google-apps.folder"

var (
	folderIDPattern      = regexp.MustCompile(`folders/([a-zA-Z0-9_-]+)`)
	spreadsheetIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	bareIDPattern        = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// IsDriveID reports whether id has the shape of a Drive file or folder id
func IsDriveID(id string) bool {
	return bareIDPattern.MatchString(id)
}

// FolderIDFromURL extracts the folder id from a Drive folder URL
func FolderIDFromURL(u string) (string, bool) {
	m := folderIDPattern.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SpreadsheetIDFromURL extracts the document id from a Sheets URL
func SpreadsheetIDFromURL(u string) (string, bool) {
	m := spreadsheetIDPattern.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DriveStore lists and downloads portal images
type DriveStore struct {
	srv    *drive.Service
	logger zerolog.Logger
}

// NewDriveStore creates a read-only Drive client from client options,
// e.g. option.WithCredentialsFile
func NewDriveStore(ctx context.Context, logger zerolog.Logger, opts ...option.ClientOption) (*DriveStore, error) {
	opts = append([]option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &DriveStore{srv: srv, logger: logger.With().Str("component", "drive").Logger()}, nil
}

// ListImages returns the jpeg/png files of every portal subfolder. A folder
// without subfolders is treated as a single portal named after itself.
func (d *DriveStore) ListImages(ctx context.Context, folderID string) (common.Listing, error) {
	if !IsDriveID(folderID) {
		return nil, fmt.Errorf("invalid folder id %q", folderID)
	}
	root, err := d.srv.Files.Get(folderID).
		Fields("id, name").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", folderID, err)
	}

	subfolders, err := d.list(ctx, fmt.Sprintf("'%s' in parents and mimeType='%s'", folderID, folderMIMEType))
	if err != nil {
		return nil, fmt.Errorf("failed to list subfolders: %w", err)
	}
	if len(subfolders) == 0 {
		subfolders = []*drive.File{root}
	}

	listing := make(common.Listing, len(subfolders))
	for _, folder := range subfolders {
		files, err := d.list(ctx, fmt.Sprintf("'%s' in parents and (mimeType='image/jpeg' or mimeType='image/png')", folder.Id))
		if err != nil {
			return nil, fmt.Errorf("failed to list images of %s: %w", folder.Name, err)
		}

		entries := make([]common.ImageEntry, 0, len(files))
		for _, f := range files {
			entries = append(entries, common.ImageEntry{
				Portal:   folder.Name,
				FileID:   f.Id,
				MIMEType: f.MimeType,
				FileName: f.Name,
			})
		}
		listing[folder.Name] = entries
	}

	d.logger.Info().Str("folder", root.Name).Int("portals", len(listing)).Msg("listed images")
	return listing, nil
}

func (d *DriveStore) list(ctx context.Context, query string) ([]*drive.File, error) {
	var files []*drive.File
	err := d.srv.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, mimeType)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(1000).
		Pages(ctx, func(page *drive.FileList) error {
			files = append(files, page.Files...)
			return nil
		})
	return files, err
}

// FetchImageBytes downloads one file
func (d *DriveStore) FetchImageBytes(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := d.srv.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileID, err)
	}
	return data, nil
}
