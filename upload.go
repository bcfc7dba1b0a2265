package onedrived

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UploadSession is a resumable upload on the server side.
// Every acknowledged chunk may extend the expiration time.
type UploadSession struct {
	UploadURL          string    `json:"uploadUrl"`
	ExpirationTime     time.Time `json:"expirationDateTime"`
	NextExpectedRanges []string  `json:"nextExpectedRanges"`
}

// update applies the acknowledgment of a chunk to the session.
func (s UploadSession) update(ack UploadSession) UploadSession {
	if ack.UploadURL != "" {
		s.UploadURL = ack.UploadURL
	}

	if !ack.ExpirationTime.IsZero() {
		s.ExpirationTime = ack.ExpirationTime
	}

	s.NextExpectedRanges = ack.NextExpectedRanges
	return s
}

// sessionGrace is how far the local clock may run ahead of the server
// before a session is considered expired.
const sessionGrace = 15 * time.Minute

// check verifies the session can accept a chunk starting at position.
func (s UploadSession) check(position int64, now time.Time) error {
	if !s.ExpirationTime.IsZero() && now.After(s.ExpirationTime.Add(sessionGrace)) {
		return fmt.Errorf("expired at %v: %w", s.ExpirationTime, ErrSessionExpired)
	}

	if len(s.NextExpectedRanges) == 0 {
		return nil
	}

	start, err := rangeStart(s.NextExpectedRanges[0])
	if err != nil {
		return err
	}

	if start != position {
		return fmt.Errorf("server expects %v, next chunk starts at %d: %w", s.NextExpectedRanges[0], position, ErrUploadRange)
	}

	return nil
}

// rangeStart parses the start of a range such as "26-" or "0-511".
func rangeStart(r string) (int64, error) {
	start, _, ok := strings.Cut(r, "-")
	if !ok {
		return 0, fmt.Errorf("no '-' in expected range %q: %w", r, ErrUploadRange)
	}

	pos, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad expected range %q: %w", r, ErrUploadRange)
	}

	return pos, nil
}

// Upload creates or replaces the file called name inside parent with size
// bytes read from in.
//
// Files up to the max put size of the drive are sent in a single request. Larger files
// are sent through an upload session, one chunk at a time in increasing
// order. Any failure aborts the upload; the session is left to expire.
func (drive *Drive) Upload(ctx context.Context, name string, in io.Reader, size int64, parent ItemRef, behavior ConflictBehavior) (*Item, error) {
	if size < 0 {
		return nil, fmt.Errorf("upload %v: negative size: %w", name, ErrInvalidArgument)
	}

	if size <= drive.Config().MaxPutSize {
		return drive.uploadSingle(ctx, name, in, size, parent, behavior)
	}

	return drive.uploadChunked(ctx, name, in, size, parent, behavior)
}

func (drive *Drive) uploadSingle(ctx context.Context, name string, in io.Reader, size int64, parent ItemRef, behavior ConflictBehavior) (*Item, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(in, data); err != nil {
		return nil, fmt.Errorf("read %v: %w", name, err)
	}

	q := url.Values{}
	q.Add("@microsoft.graph.conflictBehavior", string(behavior))
	uri := drive.childURI(parent, name) + "/content?" + q.Encode()

	drive.logger.Debug("uploading in a single request",
		zap.String("name", name),
		zap.Int64("size", size))

	res, err := drive.send(ctx, http.MethodPut, uri, data)
	if err != nil {
		return nil, fmt.Errorf("upload %v: %w", name, err)
	}

	if err := expectStatus(res, http.StatusOK, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("upload %v: %w", name, err)
	}

	return decodeItem(res)
}

func (drive *Drive) createUploadSession(ctx context.Context, name string, parent ItemRef, behavior ConflictBehavior) (*UploadSession, error) {
	body := map[string]interface{}{
		"item": map[string]interface{}{
			"@microsoft.graph.conflictBehavior": behavior,
		},
	}

	res, err := drive.send(ctx, http.MethodPost, drive.childURI(parent, name)+"/createUploadSession", body)
	if err != nil {
		return nil, fmt.Errorf("create upload session for %v: %w", name, err)
	}

	session := new(UploadSession)
	if err := decodeJSON(res, session); err != nil {
		return nil, err
	}

	if session.UploadURL == "" {
		return nil, fmt.Errorf("upload session for %v: %w", name, &MissingFieldError{Field: "uploadUrl"})
	}

	return session, nil
}

func (drive *Drive) uploadChunked(ctx context.Context, name string, in io.Reader, size int64, parent ItemRef, behavior ConflictBehavior) (*Item, error) {
	session, err := drive.createUploadSession(ctx, name, parent, behavior)
	if err != nil {
		return nil, err
	}

	chunkSize := drive.Config().MaxPutSize
	chunk := make([]byte, chunkSize)

	var position int64
	for position < size {
		if err := session.check(position, drive.root.now()); err != nil {
			return nil, fmt.Errorf("upload %v: %w", name, err)
		}

		n := chunkSize
		if size-position < n {
			n = size - position
		}

		if _, err := io.ReadFull(in, chunk[:n]); err != nil {
			return nil, fmt.Errorf("read %v at %d: %w", name, position, err)
		}

		drive.logger.Debug("uploading chunk",
			zap.String("name", name),
			zap.Int64("start", position),
			zap.Int64("end", position+n-1),
			zap.Int64("size", size))

		item, ack, err := drive.uploadFragment(ctx, session.UploadURL, chunk[:n], position, size)
		if err != nil {
			return nil, fmt.Errorf("upload %v at %d: %w", name, position, err)
		}

		position += n

		if item != nil {
			if position < size {
				return nil, fmt.Errorf("upload %v finished at %d of %d bytes: %w", name, position, size, ErrUploadIncomplete)
			}

			return item, nil
		}

		*session = session.update(*ack)
	}

	return nil, fmt.Errorf("upload %v sent %d bytes without receiving an item: %w", name, size, ErrUploadIncomplete)
}

// uploadFragment sends a single chunk. It returns the item once the server
// has received the last chunk, and the session acknowledgment otherwise.
func (drive *Drive) uploadFragment(ctx context.Context, uploadURL string, chunk []byte, start, total int64) (*Item, *UploadSession, error) {
	req, err := newRequest(ctx, http.MethodPut, uploadURL, chunk)
	if err != nil {
		return nil, nil, err
	}

	end := start + int64(len(chunk)) - 1
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))

	// The upload URL is pre-authenticated. A range is sent exactly once.
	res, err := drive.fetcher().do(req, false, false)
	if err != nil {
		return nil, nil, err
	}

	raw := make(map[string]json.RawMessage)
	if err := decodeJSON(res, &raw); err != nil {
		return nil, nil, err
	}

	if _, ok := raw["id"]; ok {
		item, err := newItem(raw)
		return item, nil, err
	}

	ack := new(UploadSession)
	for key, field := range map[string]interface{}{
		"uploadUrl":          &ack.UploadURL,
		"expirationDateTime": &ack.ExpirationTime,
		"nextExpectedRanges": &ack.NextExpectedRanges,
	} {
		if data, ok := raw[key]; ok {
			if err := json.Unmarshal(data, field); err != nil {
				return nil, nil, fmt.Errorf("%v: %w", key, err)
			}
		}
	}

	return nil, ack, nil
}
