package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
)

// Thing is one parsed listing child: an API entity discriminated by
// kind, carrying its base-36 id and author plus the raw payload.
type Thing struct {
	Kind string    `json:"kind"`
	Data ThingData `json:"data"`
}

// ThingData holds the fields the pipeline and dispatcher care about.
// Raw preserves the complete payload for downstream consumers.
type ThingData struct {
	ID     string          `json:"id"`
	Author string          `json:"author"`
	Raw    json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the raw payload alongside the parsed fields.
func (d *ThingData) UnmarshalJSON(b []byte) error {
	type plain ThingData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	p.Raw = append(json.RawMessage(nil), b...)
	*d = ThingData(p)
	return nil
}

// Fullname returns the kind-qualified id, e.g. "t1_abc123".
func (t *Thing) Fullname() string {
	return t.Kind + "_" + t.Data.ID
}

// listing is the upstream collection response shape.
type listing struct {
	Data *struct {
		Children []Thing `json:"children"`
	} `json:"data"`
}

// Models enqueues an authenticated listing request. The handler
// receives the listing's children sorted ascending by the numeric value
// of their base-36 id (oldest first; the upstream does not guarantee
// return order), or nil on any failure: transport error, non-success
// status, unparsable body, or a body lacking the listing shape.
func (c *Client) Models(ctx context.Context, spec RequestSpec, handler ListingHandler) {
	c.Request(ctx, spec, func(err error, resp *http.Response, body []byte) {
		if err != nil || resp == nil || resp.StatusCode != http.StatusOK {
			handler(nil)
			return
		}

		var l listing
		if jsonErr := json.Unmarshal(body, &l); jsonErr != nil {
			c.logger.Warn().
				Err(jsonErr).
				Str("endpoint", spec.Path).
				Msg("Unparsable listing body")
			handler(nil)
			return
		}

		if l.Data == nil || l.Data.Children == nil {
			handler(nil)
			return
		}

		handler(sortByID(l.Data.Children))
	})
}

// sortByID orders things ascending by base-36 id. Ids that fail to
// parse sort first.
func sortByID(things []Thing) []Thing {
	sort.SliceStable(things, func(i, j int) bool {
		return base36(things[i].Data.ID) < base36(things[j].Data.ID)
	})
	return things
}

func base36(id string) int64 {
	v, err := strconv.ParseInt(id, 36, 64)
	if err != nil {
		return 0
	}
	return v
}
