package onedrived

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	ds "github.com/m-rots/onedrived/datastore"
	"go.uber.org/zap"
)

// DriveInfo is the metadata of a drive as returned by the server.
type DriveInfo struct {
	ID        string      `json:"id"`
	DriveType string      `json:"driveType"`
	Owner     IdentitySet `json:"owner"`
	Quota     Quota       `json:"quota"`
}

// ConflictBehavior decides what the server does when an item with the
// same name already exists.
type ConflictBehavior string

const (
	ConflictFail    ConflictBehavior = "fail"
	ConflictReplace ConflictBehavior = "replace"
	ConflictRename  ConflictBehavior = "rename"
)

// ItemRef addresses an item by id or by path relative to the drive root.
// The zero ItemRef is the drive root.
type ItemRef struct {
	ID   string
	Path string
}

func ByID(id string) ItemRef {
	return ItemRef{ID: id}
}

func ByPath(p string) ItemRef {
	return ItemRef{Path: p}
}

func (ref ItemRef) isRoot() bool {
	return ref.ID == "" && strings.Trim(ref.Path, "/") == ""
}

func (ref ItemRef) String() string {
	if ref.ID != "" {
		return "id:" + ref.ID
	}

	return "/" + strings.Trim(ref.Path, "/")
}

// ByteRange is an inclusive range of bytes.
type ByteRange struct {
	Start int64
	End   int64
}

// ItemUpdate lists the fields to change on an item. Nil fields are left as is.
type ItemUpdate struct {
	Name            *string
	Description     *string
	ParentReference *ItemReference
	FileSystemInfo  *FileSystemInfo
}

// Drive performs the remote operations on a single drive.
type Drive struct {
	root   *Root
	logger *zap.Logger

	mu     sync.RWMutex
	info   DriveInfo
	config DriveConfig
	fetch  *fetcher
}

func (drive *Drive) ID() string {
	drive.mu.RLock()
	defer drive.mu.RUnlock()
	return drive.info.ID
}

// Account returns the account the drive belongs to.
func (drive *Drive) Account() Account {
	return drive.root.account
}

func (drive *Drive) Info() DriveInfo {
	drive.mu.RLock()
	defer drive.mu.RUnlock()
	return drive.info
}

// Config returns the configuration of the drive, defaults included.
func (drive *Drive) Config() DriveConfig {
	drive.mu.RLock()
	defer drive.mu.RUnlock()
	return drive.config
}

// SetConfig merges config onto the defaults of the Root.
// An invalid proxy leaves the current configuration in place.
func (drive *Drive) SetConfig(config DriveConfig) error {
	config = drive.root.defaults.merge(config)

	fetch, err := drive.fetcher().withProxies(config.Proxies)
	if err != nil {
		return fmt.Errorf("drive %v: %w", drive.ID(), err)
	}

	drive.mu.Lock()
	defer drive.mu.Unlock()
	drive.config = config
	drive.fetch = fetch
	return nil
}

func (drive *Drive) fetcher() *fetcher {
	drive.mu.RLock()
	defer drive.mu.RUnlock()
	return drive.fetch
}

// Key identifies the drive in the drive registry.
func (drive *Drive) Key() ds.DriveKey {
	account := drive.root.account

	return ds.DriveKey{
		DriveID:     drive.ID(),
		AccountID:   account.ID(),
		AccountType: string(account.Type()),
	}
}

type driveDump struct {
	Drive  DriveInfo   `json:"drive"`
	Config DriveConfig `json:"config"`
}

// Dump serialises the drive metadata and the configuration.
// Only the configuration which differs from the defaults is kept.
func (drive *Drive) Dump() ([]byte, error) {
	drive.mu.RLock()
	defer drive.mu.RUnlock()

	return json.Marshal(driveDump{Drive: drive.info, Config: drive.root.defaults.diff(drive.config)})
}

// LoadDrive restores a drive from the output of Dump.
func LoadDrive(root *Root, dump []byte) (*Drive, error) {
	var d driveDump
	if err := json.Unmarshal(dump, &d); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidDump)
	}

	if d.Drive.ID == "" {
		return nil, fmt.Errorf("missing drive id: %w", ErrInvalidDump)
	}

	drive := root.newDrive(d.Drive, DriveConfig{})
	if err := drive.SetConfig(d.Config); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidDump)
	}

	return drive, nil
}

// Refresh fetches the latest drive metadata, such as the quota.
func (drive *Drive) Refresh(ctx context.Context) error {
	info := new(DriveInfo)
	if err := drive.fetcher().get(ctx, drive.driveURI(), info); err != nil {
		return fmt.Errorf("refresh drive: %w", err)
	}

	drive.mu.Lock()
	drive.info = *info
	drive.mu.Unlock()

	return nil
}

func (drive *Drive) driveURI() string {
	return drive.root.baseURL + "/drives/" + url.PathEscape(drive.ID())
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}

	return "/" + strings.Join(segments, "/")
}

func (drive *Drive) itemURI(ref ItemRef) string {
	switch {
	case ref.ID != "":
		return drive.driveURI() + "/items/" + url.PathEscape(ref.ID)
	case ref.isRoot():
		return drive.driveURI() + "/root"
	default:
		return drive.driveURI() + "/root:" + escapePath(ref.Path) + ":"
	}
}

// childURI addresses the child called name of parent, whether it exists or not.
func (drive *Drive) childURI(parent ItemRef, name string) string {
	switch {
	case parent.ID != "":
		return drive.itemURI(parent) + ":/" + url.PathEscape(name) + ":"
	case parent.isRoot():
		return drive.driveURI() + "/root:/" + url.PathEscape(name) + ":"
	default:
		return drive.driveURI() + "/root:" + escapePath(path.Join(parent.Path, name)) + ":"
	}
}

func (drive *Drive) send(ctx context.Context, method, uri string, body interface{}) (*http.Response, error) {
	req, err := newRequest(ctx, method, uri, body)
	if err != nil {
		return nil, err
	}

	return drive.fetcher().withAuth(req)
}

// Root fetches the root folder of the drive,
// optionally with its immediate children expanded.
func (drive *Drive) Root(ctx context.Context, expandChildren bool) (*Item, error) {
	uri := drive.itemURI(ItemRef{})
	if expandChildren {
		uri += "?expand=children"
	}

	res, err := drive.send(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}

	return decodeItem(res)
}

// Item fetches the metadata of a single item.
func (drive *Drive) Item(ctx context.Context, ref ItemRef) (*Item, error) {
	res, err := drive.send(ctx, http.MethodGet, drive.itemURI(ref), nil)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", ref, err)
	}

	return decodeItem(res)
}

// Children lists the children of a folder one page at a time.
func (drive *Drive) Children(ctx context.Context, ref ItemRef) (*ItemCollection, error) {
	res, err := drive.send(ctx, http.MethodGet, drive.itemURI(ref)+"/children", nil)
	if err != nil {
		return nil, fmt.Errorf("children of %v: %w", ref, err)
	}

	page := new(itemPage)
	if err := decodeJSON(res, page); err != nil {
		return nil, err
	}

	return &ItemCollection{fetch: drive.fetcher(), page: page}, nil
}

// CreateDir creates a folder called name inside parent.
//
// With ConflictFail, an existing item with the same name results in an
// error matching ErrConflict.
func (drive *Drive) CreateDir(ctx context.Context, name string, parent ItemRef, behavior ConflictBehavior) (*Item, error) {
	body := map[string]interface{}{
		"name":                              name,
		"folder":                            struct{}{},
		"@microsoft.graph.conflictBehavior": behavior,
	}

	res, err := drive.send(ctx, http.MethodPost, drive.itemURI(parent)+"/children", body)
	if err != nil {
		return nil, fmt.Errorf("create %v in %v: %w", name, parent, err)
	}

	if err := expectStatus(res, http.StatusCreated, http.StatusOK); err != nil {
		return nil, err
	}

	return decodeItem(res)
}

// DeleteItem removes an item. Whether a missing item counts as success
// is up to the caller; the returned error matches ErrNotFound.
func (drive *Drive) DeleteItem(ctx context.Context, ref ItemRef) error {
	res, err := drive.send(ctx, http.MethodDelete, drive.itemURI(ref), nil)
	if err != nil {
		return fmt.Errorf("delete %v: %w", ref, err)
	}

	res.Body.Close()
	return nil
}

// UpdateItem changes the fields set in update. The root of the drive cannot be updated.
func (drive *Drive) UpdateItem(ctx context.Context, ref ItemRef, update ItemUpdate) (*Item, error) {
	if ref.isRoot() {
		return nil, fmt.Errorf("update requires an item id or a non-root path: %w", ErrInvalidArgument)
	}

	body := make(map[string]interface{})
	if update.Name != nil {
		body["name"] = *update.Name
	}

	if update.Description != nil {
		body["description"] = *update.Description
	}

	if update.ParentReference != nil {
		body["parentReference"] = update.ParentReference
	}

	if update.FileSystemInfo != nil {
		body["fileSystemInfo"] = update.FileSystemInfo
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("update of %v changes nothing: %w", ref, ErrInvalidArgument)
	}

	res, err := drive.send(ctx, http.MethodPatch, drive.itemURI(ref), body)
	if err != nil {
		return nil, fmt.Errorf("update %v: %w", ref, err)
	}

	return decodeItem(res)
}

// Download opens the content of a file. When rng is set only that range
// is requested. The caller must close the returned stream.
func (drive *Drive) Download(ctx context.Context, ref ItemRef, rng *ByteRange) (io.ReadCloser, error) {
	req, err := newRequest(ctx, http.MethodGet, drive.itemURI(ref)+"/content", nil)
	if err != nil {
		return nil, err
	}

	expected := http.StatusOK
	if rng != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
		expected = http.StatusPartialContent
	}

	res, err := drive.fetcher().withAuth(req)
	if err != nil {
		return nil, fmt.Errorf("download %v: %w", ref, err)
	}

	if err := expectStatus(res, expected); err != nil {
		return nil, fmt.Errorf("download %v: %w", ref, err)
	}

	return res.Body, nil
}
