package onedrived

import (
	"encoding/json"
	"time"
)

// FileSystemInfo holds the timestamps reported by the client that created the item.
// Unlike the server timestamps, these are the ones to compare against the local disk.
type FileSystemInfo struct {
	CreatedTime  time.Time
	ModifiedTime time.Time
}

type fileSystemInfoJSON struct {
	CreatedDateTime      *time.Time `json:"createdDateTime,omitempty"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime,omitempty"`
}

// MarshalJSON leaves out zero timestamps so a partial update only touches
// the timestamps that were set.
func (info FileSystemInfo) MarshalJSON() ([]byte, error) {
	var out fileSystemInfoJSON

	if !info.CreatedTime.IsZero() {
		created := info.CreatedTime.UTC()
		out.CreatedDateTime = &created
	}

	if !info.ModifiedTime.IsZero() {
		modified := info.ModifiedTime.UTC()
		out.LastModifiedDateTime = &modified
	}

	return json.Marshal(out)
}

func (info *FileSystemInfo) UnmarshalJSON(data []byte) error {
	var in fileSystemInfoJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*info = FileSystemInfo{}
	if in.CreatedDateTime != nil {
		info.CreatedTime = *in.CreatedDateTime
	}

	if in.LastModifiedDateTime != nil {
		info.ModifiedTime = *in.LastModifiedDateTime
	}

	return nil
}

// ItemReference points at an item by drive and id or path.
type ItemReference struct {
	DriveID   string `json:"driveId,omitempty"`
	DriveType string `json:"driveType,omitempty"`
	ID        string `json:"id,omitempty"`
	Path      string `json:"path,omitempty"`
}

type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// IdentitySet lists the user, application and device behind an action.
// Any of them may be nil.
type IdentitySet struct {
	User        *Identity `json:"user,omitempty"`
	Application *Identity `json:"application,omitempty"`
	Device      *Identity `json:"device,omitempty"`
}

type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

type Hashes struct {
	SHA1Hash     string `json:"sha1Hash,omitempty"`
	CRC32Hash    string `json:"crc32Hash,omitempty"`
	QuickXorHash string `json:"quickXorHash,omitempty"`
}

type FileFacet struct {
	MimeType string `json:"mimeType"`
	Hashes   Hashes `json:"hashes"`
}

type ImageFacet struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type PhotoFacet struct {
	TakenTime           time.Time `json:"takenDateTime"`
	CameraMake          string    `json:"cameraMake"`
	CameraModel         string    `json:"cameraModel"`
	FNumber             float64   `json:"fNumber"`
	ExposureDenominator float64   `json:"exposureDenominator"`
	ExposureNumerator   float64   `json:"exposureNumerator"`
	FocalLength         float64   `json:"focalLength"`
	ISO                 int       `json:"iso"`
}

// Quota is the storage usage of a drive, in bytes.
type Quota struct {
	Total     int64  `json:"total"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	Deleted   int64  `json:"deleted"`
	State     string `json:"state"`
}
