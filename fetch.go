package onedrived

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

type errorResponse struct {
	Error struct {
		Code    string
		Message string
	}
}

type fetcher struct {
	auth       Authenticator
	client     *http.Client
	sleep      func(time.Duration)
	maxRetries int
	logger     *zap.Logger
}

// newRequest builds a request with a replayable body.
// A non-nil body which is not already a []byte is encoded as JSON.
func newRequest(ctx context.Context, method, url string, body interface{}) (*http.Request, error) {
	var data []byte

	switch b := body.(type) {
	case nil:
	case []byte:
		data = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode %v %v: %w", method, url, err)
		}
		data = encoded
	}

	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%v %v: %w", method, url, err)
	}

	if data != nil {
		if _, isRaw := body.([]byte); isRaw {
			req.Header.Set("Content-Type", "application/octet-stream")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
	}

	return req, nil
}

// withAuth sends the request with a fresh access token.
func (fetch *fetcher) withAuth(req *http.Request) (*http.Response, error) {
	return fetch.do(req, true, true)
}

// do sends the request and returns the response on any 2xx status.
// Throttled and failed requests (429, 5xx) are retried with exponential
// backoff up to maxRetries times. Any other status is returned as an *Error.
//
// Upload session URLs are pre-authenticated, hence authorize can be false.
// Without retry the first failure is returned as is.
func (fetch *fetcher) do(req *http.Request, authorize, retry bool) (*http.Response, error) {
	var retriedAttempts int

	// handle exponential backoff
	handleBackoff := func(retryAfter time.Duration) {
		waitDuration := retryAfter

		if waitDuration <= 0 {
			exponentialBackoff := math.Exp2(float64(retriedAttempts))
			if exponentialBackoff <= 32 {
				waitDuration = time.Duration(exponentialBackoff) * time.Second
			} else {
				waitDuration = time.Duration(32) * time.Second
			}
		}

		fetch.logger.Debug("backing off",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Duration("wait", waitDuration))

		fetch.sleep(waitDuration)
		retriedAttempts++
	}

	// for loop to retry if necessary
	for {
		if retriedAttempts > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind body: %w", err)
			}
			req.Body = body
		}

		if authorize {
			token, _, err := fetch.auth.AccessToken()
			if err != nil {
				return nil, fmt.Errorf("access token: %w", err)
			}

			req.Header.Set("Authorization", "Bearer "+token)
		}

		res, err := fetch.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}

		apiErr := decodeError(res)

		switch res.StatusCode {
		case 429, 500, 502, 503, 504:
			if retry && retriedAttempts < fetch.maxRetries {
				handleBackoff(retryAfter(res))
				continue
			}
		}

		return nil, apiErr
	}
}

// decodeError reads and closes the body of a failed response.
func decodeError(res *http.Response) *Error {
	defer res.Body.Close()

	response := new(errorResponse)
	json.NewDecoder(res.Body).Decode(response)

	code := response.Error.Code
	if code == "" {
		code = http.StatusText(res.StatusCode)
	}

	return &Error{
		StatusCode: res.StatusCode,
		Code:       code,
		Message:    response.Error.Message,
	}
}

func retryAfter(res *http.Response) time.Duration {
	seconds, err := strconv.Atoi(res.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// expectStatus closes the response and fails unless it has one of the codes.
func expectStatus(res *http.Response, codes ...int) error {
	for _, code := range codes {
		if res.StatusCode == code {
			return nil
		}
	}

	res.Body.Close()
	return &Error{
		StatusCode: res.StatusCode,
		Code:       "unexpectedStatus",
		Message:    fmt.Sprintf("expected status %v, got %v", codes, res.StatusCode),
	}
}

func decodeJSON(res *http.Response, v interface{}) error {
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %v: %w", res.Request.URL.Path, err)
	}

	return nil
}

func decodeItem(res *http.Response) (*Item, error) {
	raw := make(map[string]json.RawMessage)
	if err := decodeJSON(res, &raw); err != nil {
		return nil, err
	}

	return newItem(raw)
}

// get fetches url and decodes the JSON response into v.
func (fetch *fetcher) get(ctx context.Context, url string, v interface{}) error {
	req, err := newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := fetch.withAuth(req)
	if err != nil {
		return err
	}

	return decodeJSON(res, v)
}
