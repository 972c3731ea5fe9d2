package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"touradmin/pkg/backend"
)

// Name is a REST collection served by the backend.
type Name string

const (
	Hotels    Name = "hotels"
	Places    Name = "places"
	SubPlaces Name = "subplaces"
	Packages  Name = "packages"
	Bookings  Name = "bookings"
	Ratings   Name = "ratings"
	Users     Name = "users"
)

var All = []Name{Hotels, Places, SubPlaces, Packages, Bookings, Ratings, Users}

func Parse(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown resource: %s", s)
}

// Record is one loosely typed document. Screens that need structure decode
// into their own types.
type Record map[string]json.RawMessage

func (r Record) ID() string {
	for _, k := range []string{"_id", "id"} {
		if raw, ok := r[k]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
		}
	}
	return ""
}

// String returns a top-level string field, or "".
func (r Record) String(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// Doer is the slice of the request pipeline a collection needs. GetList logs
// list payloads that are not a top-level array.
type Doer interface {
	Send(ctx context.Context, method, path string, body backend.Body, opts ...backend.RequestOption) (*backend.Response, error)
	GetList(ctx context.Context, path string, out any, opts ...backend.RequestOption) error
}

type Collection struct {
	name Name
	api  Doer
}

func NewCollection(api Doer, name Name) *Collection {
	return &Collection{name: name, api: api}
}

func (c *Collection) Name() Name { return c.name }

func (c *Collection) path(id string) string {
	if id == "" {
		return "/" + string(c.name)
	}
	return "/" + string(c.name) + "/" + url.PathEscape(id)
}

func (c *Collection) List(ctx context.Context, opts ...backend.RequestOption) ([]Record, error) {
	var out []Record
	if err := c.api.GetList(ctx, c.path(""), &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Collection) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%s: missing id", c.name)
	}
	resp, err := c.api.Send(ctx, http.MethodGet, c.path(id), nil)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := resp.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create posts body, which may be backend.JSON or a multipart backend.Form.
func (c *Collection) Create(ctx context.Context, body backend.Body) (Record, error) {
	resp, err := c.api.Send(ctx, http.MethodPost, c.path(""), body)
	if err != nil {
		return nil, err
	}
	return decodeOptional(resp)
}

func (c *Collection) Update(ctx context.Context, id string, body backend.Body) (Record, error) {
	if id == "" {
		return nil, fmt.Errorf("%s: missing id", c.name)
	}
	resp, err := c.api.Send(ctx, http.MethodPut, c.path(id), body)
	if err != nil {
		return nil, err
	}
	return decodeOptional(resp)
}

func (c *Collection) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%s: missing id", c.name)
	}
	_, err := c.api.Send(ctx, http.MethodDelete, c.path(id), nil)
	return err
}

// decodeOptional tolerates empty bodies (204) from write endpoints.
func decodeOptional(resp *backend.Response) (Record, error) {
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return Record{}, nil
	}
	var rec Record
	if err := resp.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
