// Package record defines the immutable Record envelope that flows from
// capture to bulk insert (spec.md §3.1), and the JSON-line wire codec shared
// by the pipe, failover, and dead-letter formats (spec.md §6.1, §6.2).
package record

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Record is the unit of work from capture to bulk insert. Fields are
// value-semantic: mutation of QueryString is performed by constructing a new
// envelope via WithQueryParam, never by mutating an existing Record in place.
type Record struct {
	CompanyID      string    `json:"companyId"`
	PixelID        string    `json:"pixelId"`
	RemoteAddress  string    `json:"remoteAddress"`
	RequestPath    string    `json:"requestPath"`
	QueryString    string    `json:"queryString"`
	HeadersJson    string    `json:"headersJson"`
	UserAgent      string    `json:"userAgent"`
	Referer        string    `json:"referer"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// Columns returns the record's nine fields in the fixed ordinal order used by
// the bulk writer (spec.md §4.7): 0 CompanyID, 1 PixelID, 2 RemoteAddress,
// 3 RequestPath, 4 QueryString, 5 HeadersJson, 6 UserAgent, 7 Referer,
// 8 ReceivedAt.
func (r Record) Columns() [9]any {
	return [9]any{
		r.CompanyID,
		r.PixelID,
		r.RemoteAddress,
		r.RequestPath,
		r.QueryString,
		r.HeadersJson,
		r.UserAgent,
		r.Referer,
		r.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ColumnNames lists the fixed ordinal column names, matching Columns.
var ColumnNames = [9]string{
	"company_id", "pixel_id", "remote_address", "request_path",
	"query_string", "headers_json", "user_agent", "referer", "received_at",
}

// WithQueryParam returns a new Record with a `_srv_<name>=<value>` pair
// appended to QueryString, URL-encoding value. It never mutates r. Calling
// this with an empty name is a no-op (returns r unchanged) so analyzers can
// unconditionally call it on non-firing branches.
func (r Record) WithQueryParam(name, value string) Record {
	if name == "" {
		return r
	}
	pair := "_srv_" + name + "=" + url.QueryEscape(value)
	if r.QueryString == "" {
		r.QueryString = pair
	} else {
		r.QueryString = r.QueryString + "&" + pair
	}
	return r
}

// WithQueryParams appends multiple pairs in order, equivalent to chained
// WithQueryParam calls but avoiding an intermediate Record copy per pair.
func (r Record) WithQueryParams(pairs ...Pair) Record {
	if len(pairs) == 0 {
		return r
	}
	var b strings.Builder
	b.WriteString(r.QueryString)
	for _, p := range pairs {
		if p.Name == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString("_srv_")
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value))
	}
	r.QueryString = b.String()
	return r
}

// Pair is a single `_srv_<name>=<value>` annotation produced by an analyzer.
type Pair struct {
	Name  string
	Value string
}

// QueryParam returns the decoded value of a `_srv_<name>` pair from
// QueryString, or ("", false) if absent. Used by downstream tiers that need
// to read a value an earlier tier appended (e.g. timezone mismatch reading
// the geo tier's tz). A ';' is read as part of a value, not as a separator.
func (r Record) QueryParam(name string) (string, bool) {
	values, err := url.ParseQuery(strings.ReplaceAll(r.QueryString, ";", "%3B"))
	if err != nil {
		return "", false
	}
	v := values.Get("_srv_" + name)
	if v == "" {
		if _, ok := values["_srv_"+name]; !ok {
			return "", false
		}
	}
	return v, true
}

// RawQueryParam returns the decoded value of a plain (non-`_srv_`) query
// parameter, as supplied by the browser script (e.g. `sw`, `canvasFP`, `tz`).
// A ';' is read as part of a value (e.g. a mouse path), not as a separator.
func (r Record) RawQueryParam(name string) (string, bool) {
	values, err := url.ParseQuery(strings.ReplaceAll(r.QueryString, ";", "%3B"))
	if err != nil {
		return "", false
	}
	if _, ok := values[name]; !ok {
		return "", false
	}
	return values.Get(name), true
}

// MarshalLine serializes the record to a single compact JSON line (no
// trailing newline), matching the wire format shared by the pipe stream,
// failover JSONL files, and dead-letter JSON arrays (spec.md §6.1, §6.2).
func (r Record) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("record: marshal: %w", err)
	}
	return data, nil
}

// UnmarshalLine parses a single JSON line into a Record.
func UnmarshalLine(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("record: unmarshal: %w", err)
	}
	return r, nil
}
