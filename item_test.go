package onedrived

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadItem(t *testing.T, fixture string) *Item {
	t.Helper()

	data, err := os.ReadFile(fixture)
	require.NoError(t, err)

	item, err := NewItem(data)
	require.NoError(t, err)

	return item
}

func TestItemType(t *testing.T) {
	type test struct {
		name     string
		payload  string
		expected ItemType
	}

	var testCases = []test{
		{"folder", `{"id":"1","folder":{}}`, TypeFolder},
		{"file", `{"id":"1","file":{}}`, TypeFile},
		{"image before file", `{"id":"1","file":{},"image":{}}`, TypeImage},
		{"image before photo", `{"id":"1","photo":{},"image":{},"file":{}}`, TypeImage},
		{"photo before file", `{"id":"1","file":{},"photo":{}}`, TypePhoto},
		{"audio before video", `{"id":"1","video":{},"audio":{}}`, TypeAudio},
		{"video before file", `{"id":"1","file":{},"video":{}}`, TypeVideo},
		{"folder first", `{"id":"1","file":{},"folder":{}}`, TypeFolder},
		{"no facet", `{"id":"1"}`, TypeUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			item, err := NewItem([]byte(tc.payload))
			require.NoError(t, err)

			assert.Equal(t, tc.expected, item.Type())
			assert.Equal(t, tc.expected == TypeFolder, item.IsFolder())
		})
	}
}

func TestItemTypeFixtures(t *testing.T) {
	assert.Equal(t, TypeFile, loadItem(t, "testdata/items/file.json").Type())
	assert.Equal(t, TypeImage, loadItem(t, "testdata/items/photo.json").Type())
	assert.Equal(t, TypeFolder, loadItem(t, "testdata/items/folder.json").Type())
	assert.Equal(t, TypeAudio, loadItem(t, "testdata/items/video.json").Type())
	assert.Equal(t, TypeUnknown, loadItem(t, "testdata/items/minimal.json").Type())
	assert.Equal(t, "image", TypeImage.String())
	assert.Equal(t, "unknown", TypeUnknown.String())
}

func TestItemFields(t *testing.T) {
	item := loadItem(t, "testdata/items/file.json")

	assert.Equal(t, "A", item.ID())

	name, err := item.Name()
	require.NoError(t, err)
	assert.Equal(t, "file A.txt", name)

	eTag, err := item.ETag()
	require.NoError(t, err)
	assert.Equal(t, `"{A},2"`, eTag)

	cTag, err := item.CTag()
	require.NoError(t, err)
	assert.Equal(t, `"c:{A},2"`, cTag)

	size, err := item.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	description, err := item.Description()
	require.NoError(t, err)
	assert.Equal(t, "a file", description)

	webURL, err := item.WebURL()
	require.NoError(t, err)
	assert.Equal(t, "https://onedrive.live.com/?id=A", webURL)

	parent, err := item.ParentReference()
	require.NoError(t, err)
	assert.Equal(t, ItemReference{DriveID: driveID, DriveType: "personal", ID: "ROOT", Path: "/drive/root:"}, parent)

	createdBy, err := item.CreatedBy()
	require.NoError(t, err)
	require.NotNil(t, createdBy.User)
	require.NotNil(t, createdBy.Application)
	assert.Nil(t, createdBy.Device)
	assert.Equal(t, "User U", createdBy.User.DisplayName)
	assert.Equal(t, "onedrived", createdBy.Application.DisplayName)

	modifiedBy, err := item.LastModifiedBy()
	require.NoError(t, err)
	assert.Equal(t, "U", modifiedBy.User.ID)

	file, err := item.File()
	require.NoError(t, err)
	assert.Equal(t, FileFacet{MimeType: "text/plain", Hashes: Hashes{SHA1Hash: "SHA1", QuickXorHash: "QXH"}}, file)
}

func TestItemTimes(t *testing.T) {
	// fileSystemInfo takes precedence over the server timestamps
	item := loadItem(t, "testdata/items/file.json")

	created, err := item.CreatedTime()
	require.NoError(t, err)
	assert.True(t, created.Equal(time.Date(2011, 1, 2, 3, 45, 56, 0, time.UTC)))

	modified, err := item.ModifiedTime()
	require.NoError(t, err)
	assert.True(t, modified.Equal(time.Date(2012, 3, 4, 5, 6, 7, 0, time.UTC)))

	info, ok := item.FileSystemInfo()
	assert.True(t, ok)
	assert.True(t, info.ModifiedTime.Equal(modified))

	folder := loadItem(t, "testdata/items/folder.json")

	_, ok = folder.FileSystemInfo()
	assert.False(t, ok)

	modified, err = folder.ModifiedTime()
	require.NoError(t, err)
	assert.True(t, modified.Equal(time.Date(2016, 7, 3, 10, 0, 0, 0, time.UTC)))

	_, err = loadItem(t, "testdata/items/minimal.json").ModifiedTime()
	assert.Equal(t, &MissingFieldError{Field: "lastModifiedDateTime"}, err)
}

func TestPhoto(t *testing.T) {
	item := loadItem(t, "testdata/items/photo.json")

	image, err := item.Image()
	require.NoError(t, err)
	assert.Equal(t, ImageFacet{Width: 640, Height: 480}, image)

	photo, err := item.Photo()
	require.NoError(t, err)
	assert.Equal(t, "Canon", photo.CameraMake)
	assert.Equal(t, "EOS", photo.CameraModel)
	assert.Equal(t, 2.8, photo.FNumber)
	assert.Equal(t, 250.0, photo.ExposureDenominator)
	assert.Equal(t, 1.0, photo.ExposureNumerator)
	assert.Equal(t, 35.0, photo.FocalLength)
	assert.Equal(t, 400, photo.ISO)
	assert.True(t, photo.TakenTime.Equal(time.Date(2015, 5, 6, 7, 8, 9, 0, time.UTC)))

	_, err = item.Folder()
	assert.Equal(t, &MissingFieldError{Field: "folder"}, err)
}

func TestChildren(t *testing.T) {
	item := loadItem(t, "testdata/items/folder.json")

	folder, err := item.Folder()
	require.NoError(t, err)
	assert.Equal(t, 2, folder.ChildCount)

	children, err := item.Children()
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "A", children[0].ID())
	assert.Equal(t, TypeFile, children[0].Type())
	assert.Equal(t, "B", children[1].ID())
	assert.True(t, children[1].IsFolder())

	// memoised: the same instances are returned
	again, err := item.Children()
	require.NoError(t, err)
	assert.Same(t, children[0], again[0])

	_, err = loadItem(t, "testdata/items/file.json").Children()
	assert.Equal(t, &MissingFieldError{Field: "children"}, err)
}

func TestMissingFields(t *testing.T) {
	_, err := NewItem([]byte(`{"name":"no id"}`))
	assert.Equal(t, &MissingFieldError{Field: "id"}, err)

	_, err = NewItem([]byte(`{"id":null}`))
	assert.Equal(t, &MissingFieldError{Field: "id"}, err)

	_, err = NewItem([]byte(`not json`))
	assert.Error(t, err)

	item := loadItem(t, "testdata/items/minimal.json")

	_, err = item.Name()
	assert.Equal(t, &MissingFieldError{Field: "name"}, err)

	_, err = item.Size()
	assert.Equal(t, &MissingFieldError{Field: "size"}, err)

	_, err = item.ETag()
	assert.Equal(t, &MissingFieldError{Field: "eTag"}, err)

	// failures are memoised as well
	_, err = item.ParentReference()
	assert.Equal(t, &MissingFieldError{Field: "parentReference"}, err)
	_, again := item.ParentReference()
	assert.Same(t, err, again)
}

func TestItemRoundTrip(t *testing.T) {
	item := loadItem(t, "testdata/items/file.json")

	data, err := json.Marshal(item)
	require.NoError(t, err)

	copied, err := NewItem(data)
	require.NoError(t, err)

	assert.Equal(t, item.ID(), copied.ID())
	for _, accessor := range []func(*Item) (string, error){(*Item).Name, (*Item).ETag, (*Item).CTag} {
		want, _ := accessor(item)
		got, err := accessor(copied)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	size, err := copied.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	original, err := os.ReadFile("testdata/items/file.json")
	require.NoError(t, err)
	assert.JSONEq(t, string(original), string(data))
}

func TestFileSystemInfoJSON(t *testing.T) {
	modified := time.Date(2012, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))

	data, err := json.Marshal(FileSystemInfo{ModifiedTime: modified})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lastModifiedDateTime":"2012-03-04T04:06:07Z"}`, string(data))

	data, err = json.Marshal(FileSystemInfo{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}
