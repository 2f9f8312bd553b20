package km24

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoAPIKey     = errors.New("KM24_API_KEY not configured")
	ErrAuth         = errors.New("authentication failed (401/403), check KM24_API_KEY and permissions")
	ErrNotFound     = errors.New("endpoint not found / method not allowed")
	ErrTimeout      = errors.New("API timeout, the server did not answer in time")
	ErrConnection   = errors.New("API connection error, could not reach the KM24 server")
	ErrMalformed    = errors.New("API answered with non-JSON content")
	ErrUndocumented = errors.New("endpoint not documented")
	ErrStatus       = errors.New("unexpected API status")
)

// Response is the uniform envelope every gateway call returns. Transport
// problems never escape as Go errors; they are folded into Success/Error
// and Err carries the sentinel for errors.Is checks.
type Response struct {
	Success  bool
	Data     json.RawMessage
	Error    string
	Cached   bool
	CacheAge time.Duration
	Err      error
}

func ok(data json.RawMessage) Response {
	return Response{Success: true, Data: data}
}

func fail(err error) Response {
	return Response{Success: false, Error: err.Error(), Err: err}
}

func failf(sentinel error, format string, args ...any) Response {
	err := fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
	return Response{Success: false, Error: err.Error(), Err: err}
}

// Decode unmarshals the payload into v.
func (r Response) Decode(v any) error {
	if !r.Success {
		return fmt.Errorf("km24: decode of failed response: %s", r.Error)
	}
	if len(r.Data) == 0 {
		return fmt.Errorf("km24: empty payload")
	}
	return json.Unmarshal(r.Data, v)
}

// Items decodes the "items" array of a list endpoint into v (a pointer to a slice).
func (r Response) Items(v any) error {
	var env struct {
		Items json.RawMessage `json:"items"`
	}
	if err := r.Decode(&env); err != nil {
		return err
	}
	if len(env.Items) == 0 || string(env.Items) == "null" {
		env.Items = json.RawMessage("[]")
	}
	return json.Unmarshal(env.Items, v)
}

type responseJSON struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Cached   bool            `json:"cached"`
	CacheAge string          `json:"cache_age,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{Success: r.Success, Data: r.Data, Error: r.Error, Cached: r.Cached}
	if r.Cached {
		out.CacheAge = r.CacheAge.Round(time.Second).String()
	}
	return json.Marshal(out)
}
