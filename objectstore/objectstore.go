// Package objectstore implements the Object Store Client (spec §4.5):
// folder creation, existence probing, and idempotent-by-filename upload.
//
// Grounded on the teacher's clients/object_store_client.go, which wraps
// livepeer/go-tools/drivers' pluggable backend abstraction (local disk for
// scratch/dev, S3-compatible for production) behind a handful of
// driver-session calls, retried with cenkalti/backoff/v4.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	xerrors "github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/media"
	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/go-tools/drivers"
)

// DriveFile is the identity of an uploaded artifact: its folder-relative
// name and the URL the catalog should store (spec §4.5 upload_if_absent
// return value).
type DriveFile struct {
	Name string
	URL  string
}

// Client wraps a single driver.OSDriver instance (spec §4.5 "driver methods,
// not hand-rolled per-backend HTTP calls").
type Client struct {
	driver drivers.OSDriver
	osURL  string

	maxUploadAttempts int
	uploadBaseDelay   time.Duration
}

// New parses an object-store URL (the same drivers-recognized URL forms the
// teacher's config.ObjectStoreURL uses: "file://", "s3://", etc.) into a
// Client.
func New(osURL string, maxUploadAttempts int, uploadBaseDelay time.Duration) (*Client, error) {
	d, err := drivers.ParseOSURL(osURL, true)
	if err != nil {
		return nil, xerrors.NewConfigError(fmt.Sprintf("failed to parse object store URL %q: %s", log.RedactURL(osURL), err))
	}
	return &Client{driver: d, osURL: osURL, maxUploadAttempts: maxUploadAttempts, uploadBaseDelay: uploadBaseDelay}, nil
}

func (c *Client) folderPath(folderID string) string {
	if folderID == "" {
		return ""
	}
	return folderID
}

// CreateFolder creates (or, idempotently, confirms) a folder for the given
// name under parentID (spec §4.5 create_folder). The drivers abstraction has
// no native folder concept, so a folder is modeled as a path prefix a
// session is rooted at - shared-drive and local-disk backends both honor
// plain path joins.
func (c *Client) CreateFolder(ctx context.Context, requestID, name, parentID string) (string, error) {
	folderID := path.Join(c.folderPath(parentID), name)
	log.Log(requestID, "object store folder resolved", "folder_id", folderID)
	return folderID, nil
}

// FileExists performs a list-by-name probe within a folder, excluding
// trashed items (spec §4.5 file_exists). The drivers abstraction surfaces
// deletion via absence from ListFiles, so there is nothing further to filter.
func (c *Client) FileExists(ctx context.Context, folderID, name string) (bool, string, error) {
	sess := c.driver.NewSession(c.folderPath(folderID))
	page, err := sess.ListFiles(ctx, "", "")
	if err != nil {
		return false, "", fmt.Errorf("listing object store folder %q: %w", folderID, err)
	}
	for _, f := range page.Files() {
		if path.Base(f.Name) == name {
			return true, path.Join(folderID, name), nil
		}
	}
	return false, "", nil
}

// UploadIfAbsent uploads a MediaFile to a folder unless a file of the same
// name already exists there, in which case the existing identity is
// returned without uploading (spec §4.5 upload_if_absent). The upload call
// is retried with exponential backoff.
func (c *Client) UploadIfAbsent(ctx context.Context, requestID string, file media.MediaFile, folderID string) (bool, DriveFile, error) {
	exists, existingID, err := c.FileExists(ctx, folderID, file.Filename)
	if err != nil {
		return false, DriveFile{}, err
	}
	if exists {
		log.Log(requestID, "object store upload skipped, file already present", "folder_id", folderID, "filename", file.Filename)
		return false, DriveFile{Name: file.Filename, URL: existingID}, nil
	}

	var driveFile DriveFile
	uploadOnce := func() error {
		f, openErr := os.Open(file.Path)
		if openErr != nil {
			return backoff.Permanent(openErr)
		}
		defer f.Close()

		sess := c.driver.NewSession(c.folderPath(folderID))
		info, saveErr := sess.SaveData(ctx, file.Filename, f, nil, 0)
		if saveErr != nil {
			if errors.Is(saveErr, drivers.ErrNotExist) {
				return backoff.Permanent(xerrors.NewObjectNotFoundError("object store rejected upload", saveErr))
			}
			return fmt.Errorf("uploading %q to object store: %w", file.Filename, saveErr)
		}
		driveFile = DriveFile{Name: file.Filename, URL: info}
		return nil
	}

	retries := c.maxUploadAttempts - 1
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(c.uploadBackoff(), uint64(retries))
	if err := backoff.Retry(uploadOnce, b); err != nil {
		return false, DriveFile{}, err
	}
	log.Log(requestID, "object store upload complete", "folder_id", folderID, "filename", file.Filename)
	return true, driveFile, nil
}

func (c *Client) uploadBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.uploadBaseDelay
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}
