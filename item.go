package onedrived

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// ItemType classifies an item by the facets present in its payload.
type ItemType int

const (
	TypeUnknown ItemType = iota
	TypeFolder
	TypeImage
	TypePhoto
	TypeAudio
	TypeVideo
	TypeFile
)

// typePriority decides the type of payloads carrying more than one facet,
// e.g. a file which is also an image.
var typePriority = []struct {
	key string
	typ ItemType
}{
	{"folder", TypeFolder},
	{"image", TypeImage},
	{"photo", TypePhoto},
	{"audio", TypeAudio},
	{"video", TypeVideo},
	{"file", TypeFile},
}

func (t ItemType) String() string {
	for _, p := range typePriority {
		if p.typ == t {
			return p.key
		}
	}

	return "unknown"
}

type memo[T any] struct {
	once sync.Once
	val  T
	err  error
}

func (m *memo[T]) get(fn func() (T, error)) (T, error) {
	m.once.Do(func() {
		m.val, m.err = fn()
	})

	return m.val, m.err
}

// Item is a read-only view of the metadata of a single file or folder,
// as last returned by the server. Items are never modified; a newer
// response produces a new Item.
type Item struct {
	raw    map[string]json.RawMessage
	id     string
	typ    ItemType
	fsInfo *FileSystemInfo

	parent         memo[ItemReference]
	createdBy      memo[IdentitySet]
	lastModifiedBy memo[IdentitySet]
	folder         memo[FolderFacet]
	file           memo[FileFacet]
	image          memo[ImageFacet]
	photo          memo[PhotoFacet]
	children       memo[[]*Item]
}

// NewItem wraps a driveItem payload. The payload must at least carry an id.
func NewItem(data []byte) (*Item, error) {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("item: %w", err)
	}

	return newItem(raw)
}

func newItem(raw map[string]json.RawMessage) (*Item, error) {
	item := &Item{raw: raw}

	if err := item.field("id", &item.id); err != nil {
		return nil, err
	}

	for _, p := range typePriority {
		if _, ok := raw[p.key]; ok {
			item.typ = p.typ
			break
		}
	}

	if _, ok := raw["fileSystemInfo"]; ok {
		info := new(FileSystemInfo)
		if err := item.field("fileSystemInfo", info); err != nil {
			return nil, err
		}

		item.fsInfo = info
	}

	return item, nil
}

func (item *Item) field(name string, v interface{}) error {
	data, ok := item.raw[name]
	if !ok || string(data) == "null" {
		return &MissingFieldError{Field: name}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%v: %w", name, err)
	}

	return nil
}

func (item *Item) ID() string {
	return item.id
}

// Type returns the first facet in the order folder, image, photo,
// audio, video, file which is present on the item.
func (item *Item) Type() ItemType {
	return item.typ
}

// IsFolder is derived from Type. As folder comes first in the priority
// order, it is true exactly when the payload has a folder facet.
func (item *Item) IsFolder() bool {
	return item.typ == TypeFolder
}

func (item *Item) Name() (name string, err error) {
	err = item.field("name", &name)
	return name, err
}

func (item *Item) Description() (description string, err error) {
	err = item.field("description", &description)
	return description, err
}

func (item *Item) ETag() (eTag string, err error) {
	err = item.field("eTag", &eTag)
	return eTag, err
}

func (item *Item) CTag() (cTag string, err error) {
	err = item.field("cTag", &cTag)
	return cTag, err
}

func (item *Item) Size() (size int64, err error) {
	err = item.field("size", &size)
	return size, err
}

func (item *Item) WebURL() (webURL string, err error) {
	err = item.field("webUrl", &webURL)
	return webURL, err
}

// FileSystemInfo returns the client-side timestamps, if the payload has them.
func (item *Item) FileSystemInfo() (FileSystemInfo, bool) {
	if item.fsInfo == nil {
		return FileSystemInfo{}, false
	}

	return *item.fsInfo, true
}

// CreatedTime prefers the fileSystemInfo facet over the server timestamp.
func (item *Item) CreatedTime() (time.Time, error) {
	if item.fsInfo != nil && !item.fsInfo.CreatedTime.IsZero() {
		return item.fsInfo.CreatedTime, nil
	}

	var created time.Time
	err := item.field("createdDateTime", &created)
	return created, err
}

// ModifiedTime prefers the fileSystemInfo facet over the server timestamp.
func (item *Item) ModifiedTime() (time.Time, error) {
	if item.fsInfo != nil && !item.fsInfo.ModifiedTime.IsZero() {
		return item.fsInfo.ModifiedTime, nil
	}

	var modified time.Time
	err := item.field("lastModifiedDateTime", &modified)
	return modified, err
}

func (item *Item) ParentReference() (ItemReference, error) {
	return item.parent.get(func() (ref ItemReference, err error) {
		err = item.field("parentReference", &ref)
		return ref, err
	})
}

func (item *Item) CreatedBy() (IdentitySet, error) {
	return item.createdBy.get(func() (set IdentitySet, err error) {
		err = item.field("createdBy", &set)
		return set, err
	})
}

func (item *Item) LastModifiedBy() (IdentitySet, error) {
	return item.lastModifiedBy.get(func() (set IdentitySet, err error) {
		err = item.field("lastModifiedBy", &set)
		return set, err
	})
}

func (item *Item) Folder() (FolderFacet, error) {
	return item.folder.get(func() (facet FolderFacet, err error) {
		err = item.field("folder", &facet)
		return facet, err
	})
}

func (item *Item) File() (FileFacet, error) {
	return item.file.get(func() (facet FileFacet, err error) {
		err = item.field("file", &facet)
		return facet, err
	})
}

func (item *Item) Image() (ImageFacet, error) {
	return item.image.get(func() (facet ImageFacet, err error) {
		err = item.field("image", &facet)
		return facet, err
	})
}

func (item *Item) Photo() (PhotoFacet, error) {
	return item.photo.get(func() (facet PhotoFacet, err error) {
		err = item.field("photo", &facet)
		return facet, err
	})
}

// Children is only present when the item was fetched with expanded children.
func (item *Item) Children() ([]*Item, error) {
	return item.children.get(func() ([]*Item, error) {
		var payloads []map[string]json.RawMessage
		if err := item.field("children", &payloads); err != nil {
			return nil, err
		}

		children := make([]*Item, 0, len(payloads))
		for _, payload := range payloads {
			child, err := newItem(payload)
			if err != nil {
				return nil, fmt.Errorf("child of %v: %w", item.id, err)
			}

			children = append(children, child)
		}

		return children, nil
	})
}

// MarshalJSON returns the payload the item was created from.
func (item *Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(item.raw)
}
