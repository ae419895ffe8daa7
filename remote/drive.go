// ABOUTME: Google Drive implementation of the remote store
// ABOUTME: Persists each partition as a flat JSON array document in an app folder
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harperreed/trendscope/models"
)

const (
	// DefaultFolderName is the Drive folder holding the partition documents.
	DefaultFolderName = "Trendscope"

	unreviewedFileName = "trends_unreviewed.json"
	reviewedFileName   = "trends_reviewed.json"

	folderMimeType = "application/vnd.google-apps.folder"
	jsonMimeType   = "application/json"
)

// DriveStore persists records on Google Drive: one JSON array document per
// partition inside a named app folder. Every operation is a read-modify-write
// of the affected partition documents.
type DriveStore struct {
	svc        *drive.Service
	folderName string
	deviceID   string

	mu       sync.Mutex
	folderID string
	fileIDs  map[bool]string
}

// NewDriveStore creates a Drive-backed store from an OAuth token. The
// deviceID is stamped on written documents as write provenance.
func NewDriveStore(ctx context.Context, token *oauth2.Token, folderName, deviceID string) (*DriveStore, error) {
	if token == nil {
		return nil, ErrNotAuthenticated
	}
	if folderName == "" {
		folderName = DefaultFolderName
	}

	config := NewOAuthConfig()
	client := config.Client(ctx, token)

	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &DriveStore{
		svc:        svc,
		folderName: folderName,
		deviceID:   deviceID,
		fileIDs:    make(map[bool]string),
	}, nil
}

func partitionFileName(reviewed bool) string {
	if reviewed {
		return reviewedFileName
	}
	return unreviewedFileName
}

// mapErr translates Drive API failures into the store error taxonomy.
func mapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
		case gerr.Code == 403 || gerr.Code == 429 || gerr.Code >= 500:
			return &TransientError{Op: op, Err: err}
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	// Anything non-HTTP (DNS, timeouts, connection resets) is retryable.
	return &TransientError{Op: op, Err: err}
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ensureFolder finds or creates the app folder and caches its ID.
func (d *DriveStore) ensureFolder(ctx context.Context) (string, error) {
	if d.folderID != "" {
		return d.folderID, nil
	}

	q := fmt.Sprintf("name='%s' and mimeType='%s' and trashed=false",
		escapeQuery(d.folderName), folderMimeType)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", mapErr("find folder", err)
	}
	if len(list.Files) > 0 {
		d.folderID = list.Files[0].Id
		return d.folderID, nil
	}

	folder, err := d.svc.Files.Create(&drive.File{
		Name:     d.folderName,
		MimeType: folderMimeType,
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", mapErr("create folder", err)
	}
	d.folderID = folder.Id
	return d.folderID, nil
}

// findPartitionFile returns the file ID of a partition document, or "" if it
// does not exist yet.
func (d *DriveStore) findPartitionFile(ctx context.Context, reviewed bool) (string, error) {
	if id, ok := d.fileIDs[reviewed]; ok {
		return id, nil
	}

	folderID, err := d.ensureFolder(ctx)
	if err != nil {
		return "", err
	}

	q := fmt.Sprintf("name='%s' and '%s' in parents and trashed=false",
		escapeQuery(partitionFileName(reviewed)), folderID)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", mapErr("find partition file", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	d.fileIDs[reviewed] = list.Files[0].Id
	return list.Files[0].Id, nil
}

// loadPartition downloads and decodes one partition document. A missing
// document reads as an empty partition.
func (d *DriveStore) loadPartition(ctx context.Context, reviewed bool) ([]storedRecord, error) {
	fileID, err := d.findPartitionFile(ctx, reviewed)
	if err != nil {
		return nil, err
	}
	if fileID == "" {
		return nil, nil
	}

	resp, err := d.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, mapErr("download partition", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: "download partition", Err: err}
	}

	var records []storedRecord
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to decode partition document: %w", err)
		}
	}
	return records, nil
}

// savePartition uploads one partition document, creating it on first write.
func (d *DriveStore) savePartition(ctx context.Context, reviewed bool, records []storedRecord) error {
	if records == nil {
		records = []storedRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode partition document: %w", err)
	}

	fileID, err := d.findPartitionFile(ctx, reviewed)
	if err != nil {
		return err
	}

	meta := &drive.File{
		AppProperties: map[string]string{"lastWriter": d.deviceID},
	}

	if fileID == "" {
		folderID, err := d.ensureFolder(ctx)
		if err != nil {
			return err
		}
		meta.Name = partitionFileName(reviewed)
		meta.Parents = []string{folderID}
		meta.MimeType = jsonMimeType
		created, err := d.svc.Files.Create(meta).
			Media(bytes.NewReader(data)).Fields("id").Context(ctx).Do()
		if err != nil {
			return mapErr("create partition", err)
		}
		d.fileIDs[reviewed] = created.Id
		return nil
	}

	_, err = d.svc.Files.Update(fileID, meta).
		Media(bytes.NewReader(data)).Context(ctx).Do()
	if err != nil {
		return mapErr("update partition", err)
	}
	return nil
}

func (d *DriveStore) UpsertMany(ctx context.Context, records []models.TrendsRecord) ([]models.TrendsRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	byPartition := map[bool][]models.TrendsRecord{}
	for _, r := range records {
		byPartition[r.Reviewed] = append(byPartition[r.Reviewed], r)
	}

	now := time.Now().Truncate(time.Millisecond)
	out := make([]models.TrendsRecord, 0, len(records))
	for reviewed, batch := range byPartition {
		existing, err := d.loadPartition(ctx, reviewed)
		if err != nil {
			return nil, err
		}

		index := make(map[string]int, len(existing))
		for i, sr := range existing {
			index[sr.TargetKeyword] = i
		}
		for _, r := range batch {
			sr := storedRecord{TrendsRecord: r, UpdatedAt: now}
			if i, ok := index[r.TargetKeyword]; ok {
				existing[i] = sr
			} else {
				index[r.TargetKeyword] = len(existing)
				existing = append(existing, sr)
			}
			out = append(out, sr.TrendsRecord)
		}

		if err := d.savePartition(ctx, reviewed, existing); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *DriveStore) Query(ctx context.Context, f Filter) ([]models.TrendsRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	partitions := []bool{false, true}
	if f.Reviewed != nil {
		partitions = []bool{*f.Reviewed}
	}

	var out []models.TrendsRecord
	search := strings.ToLower(f.Search)
	for _, reviewed := range partitions {
		records, err := d.loadPartition(ctx, reviewed)
		if err != nil {
			return nil, err
		}
		for _, sr := range records {
			if search != "" && !strings.Contains(strings.ToLower(sr.TargetKeyword), search) {
				continue
			}
			out = append(out, sr.TrendsRecord)
		}
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (d *DriveStore) UpdateReviewed(ctx context.Context, keywords []string, reviewed bool) ([]models.TrendsRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	wanted := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		wanted[kw] = true
	}

	source, err := d.loadPartition(ctx, !reviewed)
	if err != nil {
		return nil, err
	}
	target, err := d.loadPartition(ctx, reviewed)
	if err != nil {
		return nil, err
	}

	targetIndex := make(map[string]int, len(target))
	for i, sr := range target {
		targetIndex[sr.TargetKeyword] = i
	}

	now := time.Now().Truncate(time.Millisecond)
	var touched []models.TrendsRecord
	var remaining []storedRecord
	moved := false
	existingTargets := len(target)
	for _, sr := range source {
		if !wanted[sr.TargetKeyword] {
			remaining = append(remaining, sr)
			continue
		}
		moved = true
		// When the target partition already holds a copy, that copy wins
		// and the source duplicate is simply dropped.
		if _, ok := targetIndex[sr.TargetKeyword]; ok {
			continue
		}
		sr.Reviewed = reviewed
		sr.UpdatedAt = now
		targetIndex[sr.TargetKeyword] = len(target)
		target = append(target, sr)
		touched = append(touched, sr.TrendsRecord)
	}

	// Records already sitting in the target partition only need a stamp.
	for i := 0; i < existingTargets; i++ {
		if wanted[target[i].TargetKeyword] {
			target[i].Reviewed = reviewed
			target[i].UpdatedAt = now
			touched = append(touched, target[i].TrendsRecord)
		}
	}

	if moved {
		if err := d.savePartition(ctx, !reviewed, remaining); err != nil {
			return nil, err
		}
	}
	if len(touched) > 0 {
		if err := d.savePartition(ctx, reviewed, target); err != nil {
			return nil, err
		}
	}
	return touched, nil
}

func (d *DriveStore) DeleteWhere(ctx context.Context, p Predicate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var only map[string]bool
	if len(p.Keywords) > 0 {
		only = make(map[string]bool, len(p.Keywords))
		for _, kw := range p.Keywords {
			only[kw] = true
		}
	}

	partitions := []bool{false, true}
	if p.Reviewed != nil {
		partitions = []bool{*p.Reviewed}
	}

	for _, reviewed := range partitions {
		records, err := d.loadPartition(ctx, reviewed)
		if err != nil {
			return err
		}
		var kept []storedRecord
		for _, sr := range records {
			if only == nil || only[sr.TargetKeyword] {
				continue
			}
			kept = append(kept, sr)
		}
		if len(kept) == len(records) {
			continue
		}
		if err := d.savePartition(ctx, reviewed, kept); err != nil {
			return err
		}
	}
	return nil
}

func (d *DriveStore) ChangedSince(ctx context.Context, since time.Time) ([]models.TrendsRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.TrendsRecord
	for _, reviewed := range []bool{false, true} {
		records, err := d.loadPartition(ctx, reviewed)
		if err != nil {
			return nil, err
		}
		for _, sr := range records {
			if sr.UpdatedAt.After(since) {
				out = append(out, sr.TrendsRecord)
			}
		}
	}
	return out, nil
}
