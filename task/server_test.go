package task

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-rots/onedrived"
	"github.com/stretchr/testify/require"
)

const driveID = "testDrive"

type fakeItem struct {
	id       string
	path     string
	folder   bool
	content  []byte
	version  int
	modified time.Time
}

func (it *fakeItem) payload() map[string]interface{} {
	p := map[string]interface{}{
		"id":   it.id,
		"name": path.Base(it.path),
		"size": len(it.content),
		"eTag": fmt.Sprintf("%s,%d", it.id, it.version),
		"cTag": fmt.Sprintf("c:%s,%d", it.id, it.version),
		"parentReference": map[string]string{
			"driveId": driveID,
			"path":    "/drive/root:" + path.Dir(it.path),
		},
		"lastModifiedDateTime": it.modified.Format(time.RFC3339Nano),
		"fileSystemInfo": map[string]string{
			"lastModifiedDateTime": it.modified.Format(time.RFC3339Nano),
		},
	}

	if it.folder {
		p["folder"] = map[string]int{"childCount": 0}
	} else {
		p["file"] = map[string]string{"mimeType": "application/octet-stream"}
	}

	return p
}

type fakeSession struct {
	path     string
	behavior string
	content  []byte
	size     int64
}

// fakeDrive is an in-memory drive speaking enough of the Graph API
// for the tasks.
type fakeDrive struct {
	t   *testing.T
	url string

	mu       sync.Mutex
	byID     map[string]*fakeItem
	byPath   map[string]*fakeItem
	sessions map[string]*fakeSession
	next     int
	now      time.Time

	failPatch bool
	patches   int
	downloads []string
}

func newFakeDrive(t *testing.T) (*fakeDrive, *onedrived.Drive) {
	fake := &fakeDrive{
		t:        t,
		byID:     make(map[string]*fakeItem),
		byPath:   make(map[string]*fakeItem),
		sessions: make(map[string]*fakeSession),
		now:      time.Now().UTC().Truncate(time.Second),
	}

	server := httptest.NewServer(http.HandlerFunc(fake.serve))
	t.Cleanup(server.Close)
	fake.url = server.URL

	account := onedrived.StaticAccount("account", onedrived.AccountPersonal, &mockAuth{})
	root := onedrived.New(account,
		onedrived.WithBaseURL(server.URL),
		onedrived.WithMaxPutSize(2),
		onedrived.WithMaxRetries(0))

	drive, err := root.Drive(testContext(t), driveID)
	require.NoError(t, err)

	return fake, drive
}

type mockAuth struct{}

func (auth *mockAuth) AccessToken() (string, int64, error) {
	return "testAccessToken", 0, nil
}

func (fake *fakeDrive) put(p string, folder bool, content []byte) *fakeItem {
	p = path.Clean("/" + p)

	if it, ok := fake.byPath[p]; ok {
		it.content = content
		it.version++
		it.modified = fake.now
		return it
	}

	fake.next++
	it := &fakeItem{
		id:       fmt.Sprintf("ITEM%d", fake.next),
		path:     p,
		folder:   folder,
		content:  content,
		version:  1,
		modified: fake.now,
	}

	fake.byID[it.id] = it
	fake.byPath[p] = it
	return it
}

func (fake *fakeDrive) item(p string) *fakeItem {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.byPath[path.Clean("/"+p)]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{"code": code, "message": code},
	})
}

func (fake *fakeDrive) serve(w http.ResponseWriter, r *http.Request) {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	if sid, ok := strings.CutPrefix(r.URL.Path, "/upload/"); ok {
		fake.chunk(w, r, sid)
		return
	}

	if r.Header.Get("Authorization") != "Bearer testAccessToken" {
		writeError(w, 401, "unauthenticated")
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/drives/"+driveID)
	if !ok {
		writeError(w, 404, "itemNotFound")
		return
	}

	if rest == "" {
		writeJSON(w, 200, map[string]string{"id": driveID, "driveType": "personal"})
		return
	}

	var it *fakeItem
	var p, suffix string

	switch {
	case strings.HasPrefix(rest, "/root:"):
		ref := strings.TrimPrefix(rest, "/root:")
		i := strings.LastIndex(ref, ":")
		p, suffix = path.Clean(ref[:i]), ref[i+1:]
		it = fake.byPath[p]
	case strings.HasPrefix(rest, "/root"):
		p, suffix = "/", strings.TrimPrefix(rest, "/root")
	case strings.HasPrefix(rest, "/items/"):
		id, s, _ := strings.Cut(strings.TrimPrefix(rest, "/items/"), "/")
		it, suffix = fake.byID[id], "/"+s
		if suffix == "/" {
			suffix = ""
		}
		if it != nil {
			p = it.path
		}
	}

	switch {
	case r.Method == http.MethodPut && suffix == "/content":
		data, _ := io.ReadAll(r.Body)
		existing := it != nil
		it = fake.put(p, false, data)

		status := 201
		if existing {
			status = 200
		}
		writeJSON(w, status, it.payload())

	case r.Method == http.MethodPost && suffix == "/createUploadSession":
		var body struct {
			Item map[string]string `json:"item"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		sid := strconv.Itoa(len(fake.sessions) + 1)
		fake.sessions[sid] = &fakeSession{path: p, behavior: body.Item["@microsoft.graph.conflictBehavior"]}

		writeJSON(w, 200, map[string]interface{}{
			"uploadUrl":          fake.url + "/upload/" + sid,
			"expirationDateTime": fake.now.Add(time.Hour).Format(time.RFC3339),
			"nextExpectedRanges": []string{"0-"},
		})

	case r.Method == http.MethodPost && suffix == "/children":
		var body struct {
			Name     string `json:"name"`
			Behavior string `json:"@microsoft.graph.conflictBehavior"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		child := path.Join(p, body.Name)
		if _, exists := fake.byPath[child]; exists && body.Behavior == "fail" {
			writeError(w, 409, "nameAlreadyExists")
			return
		}

		writeJSON(w, 201, fake.put(child, true, nil).payload())

	case r.Method == http.MethodPatch && suffix == "":
		if it == nil {
			writeError(w, 404, "itemNotFound")
			return
		}

		fake.patches++
		if fake.failPatch {
			writeError(w, 403, "accessDenied")
			return
		}

		var body struct {
			FileSystemInfo onedrived.FileSystemInfo `json:"fileSystemInfo"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		if !body.FileSystemInfo.ModifiedTime.IsZero() {
			it.modified = body.FileSystemInfo.ModifiedTime
			it.version++
		}

		writeJSON(w, 200, it.payload())

	case r.Method == http.MethodGet && suffix == "/content":
		if it == nil {
			writeError(w, 404, "itemNotFound")
			return
		}

		rng := r.Header.Get("Range")
		fake.downloads = append(fake.downloads, rng)

		if rng != "" {
			var start, end int
			if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil || start >= len(it.content) {
				writeError(w, 416, "invalidRange")
				return
			}

			end = min(end, len(it.content)-1)
			w.WriteHeader(206)
			w.Write(it.content[start : end+1])
			return
		}

		w.Write(it.content)

	case r.Method == http.MethodGet && suffix == "":
		if it == nil {
			writeError(w, 404, "itemNotFound")
			return
		}

		writeJSON(w, 200, it.payload())

	default:
		writeError(w, 400, "invalidRequest")
	}
}

func (fake *fakeDrive) chunk(w http.ResponseWriter, r *http.Request, sid string) {
	session, ok := fake.sessions[sid]
	if !ok {
		writeError(w, 404, "itemNotFound")
		return
	}

	var start, end, total int64
	if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
		writeError(w, 400, "invalidRange")
		return
	}

	if start != int64(len(session.content)) {
		writeError(w, 416, "invalidRange")
		return
	}

	data, _ := io.ReadAll(r.Body)
	session.content = append(session.content, data...)
	session.size = total

	if int64(len(session.content)) < total {
		writeJSON(w, 202, map[string]interface{}{
			"expirationDateTime": fake.now.Add(time.Hour).Format(time.RFC3339),
			"nextExpectedRanges": []string{fmt.Sprintf("%d-", len(session.content))},
		})
		return
	}

	delete(fake.sessions, sid)
	writeJSON(w, 201, fake.put(session.path, false, session.content).payload())
}
