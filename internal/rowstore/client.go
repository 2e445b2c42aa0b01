// Package rowstore is the typed gateway to the hosted row store. Every read
// and write in the system goes through it: it owns pagination, the 10-record
// update chunking the store enforces, transient-error retry, and the
// process-wide request budget.
package rowstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	storePageSize  = 100
	updateChunkMax = 10
	callTimeout    = 15 * time.Second
	maxAttempts    = 5
	retryInitial   = 500 * time.Millisecond
	retryMax       = 8 * time.Second
	requestsPerSec = 3
)

// StoreError is a non-2xx answer from the row store.
type StoreError struct {
	Status  int
	Type    string
	Message string
}

func (e *StoreError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("row store: %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("row store: %d: %s", e.Status, e.Message)
}

// Transient reports whether the call is worth retrying: rate limiting and
// server-side failures are, everything else surfaces unchanged.
func (e *StoreError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func asStoreError(err error) *StoreError {
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Client talks to the row-store REST API. One Client per process; tenant bases
// hang off it via Base.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *limiter
	tracer  trace.Tracer
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: callTimeout + time.Second},
		limiter: newLimiter(requestsPerSec, requestsPerSec),
		tracer:  otel.Tracer("rowstore"),
	}
}

// Base scopes the client to one tenant's base. Base implements Gateway.
func (c *Client) Base(id string) Base { return Base{c: c, id: id} }

type Base struct {
	c  *Client
	id string
}

func (b Base) ID() string { return b.id }

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type recordsEnvelope struct {
	Records []RecordUpdate `json:"records"`
}

type createEnvelope struct {
	Records []struct {
		Fields map[string]any `json:"fields"`
	} `json:"records"`
}

func (o SelectOptions) query() url.Values {
	q := url.Values{}
	if o.FilterByFormula != "" {
		q.Set("filterByFormula", o.FilterByFormula)
	}
	ps := o.PageSize
	if ps <= 0 || ps > storePageSize {
		ps = storePageSize
	}
	q.Set("pageSize", strconv.Itoa(ps))
	for _, f := range o.Fields {
		q.Add("fields[]", f)
	}
	for i, s := range o.Sort {
		q.Set(fmt.Sprintf("sort[%d][field]", i), s.Field)
		q.Set(fmt.Sprintf("sort[%d][direction]", i), s.Direction)
	}
	return q
}

// SelectFirst returns the first record matching opts, or nil when the table
// has no match.
func (b Base) SelectFirst(ctx context.Context, table string, opts SelectOptions) (*Record, error) {
	opts.PageSize = 1
	var page listResponse
	if err := b.call(ctx, http.MethodGet, table, opts.query(), nil, &page); err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	rec := page.Records[0]
	return &rec, nil
}

// SelectAllPaged walks every matching record page by page, checking ctx
// between pages. visit returning false stops the walk cleanly.
func (b Base) SelectAllPaged(ctx context.Context, table string, opts SelectOptions, visit VisitFunc) error {
	base := opts.query()
	offset := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		if offset != "" {
			q.Set("offset", offset)
		}
		var page listResponse
		if err := b.call(ctx, http.MethodGet, table, q, nil, &page); err != nil {
			return err
		}
		for _, rec := range page.Records {
			cont, err := visit(rec)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		if page.Offset == "" {
			return nil
		}
		offset = page.Offset
	}
}

// Update writes field values in chunks of at most 10 records, the store's hard
// limit. Records the store rejects individually end up in UpdateResult.Failed;
// a transport failure returns the partial result alongside the error.
func (b Base) Update(ctx context.Context, table string, updates []RecordUpdate) (UpdateResult, error) {
	var res UpdateResult
	for start := 0; start < len(updates); start += updateChunkMax {
		end := start + updateChunkMax
		if end > len(updates) {
			end = len(updates)
		}
		if err := b.updateChunk(ctx, table, updates[start:end], &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b Base) updateChunk(ctx context.Context, table string, chunk []RecordUpdate, res *UpdateResult) error {
	var out listResponse
	err := b.call(ctx, http.MethodPatch, table, nil, recordsEnvelope{Records: chunk}, &out)
	if err == nil {
		for _, u := range chunk {
			res.Updated = append(res.Updated, u.ID)
		}
		return nil
	}
	se := asStoreError(err)
	if se == nil || se.Status != http.StatusUnprocessableEntity {
		return err
	}
	if len(chunk) == 1 {
		res.Failed = append(res.Failed, chunk[0].ID)
		return nil
	}
	// The store rejects a whole call when any id in it is bad. Replay one by
	// one so the caller learns exactly which records failed.
	for _, u := range chunk {
		if err := b.updateChunk(ctx, table, []RecordUpdate{u}, res); err != nil {
			return err
		}
	}
	return nil
}

func (b Base) CreateRecord(ctx context.Context, table string, fields map[string]any) (*Record, error) {
	body := createEnvelope{}
	body.Records = append(body.Records, struct {
		Fields map[string]any `json:"fields"`
	}{Fields: fields})
	var out listResponse
	if err := b.call(ctx, http.MethodPost, table, nil, body, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, &StoreError{Status: http.StatusInternalServerError, Message: "create returned no record"}
	}
	rec := out.Records[0]
	return &rec, nil
}

// ExistsField probes for a field by requesting a single-record page projected
// to it. The store answers 422 for an unknown field and 404 for an unknown
// table; both count as absent.
func (b Base) ExistsField(ctx context.Context, table, field string) (bool, error) {
	q := url.Values{}
	q.Set("pageSize", "1")
	q.Add("fields[]", field)
	var page listResponse
	err := b.call(ctx, http.MethodGet, table, q, nil, &page)
	if err == nil {
		return true, nil
	}
	if se := asStoreError(err); se != nil &&
		(se.Status == http.StatusUnprocessableEntity || se.Status == http.StatusNotFound) {
		return false, nil
	}
	return false, err
}

// call performs one logical store call: rate limit, 15s deadline, and
// exponential backoff (500ms..8s, 5 attempts) on transient failures. The
// retry loop stops as soon as ctx is cancelled.
func (b Base) call(ctx context.Context, method, table string, q url.Values, body, out any) error {
	ctx, span := b.c.tracer.Start(ctx, "rowstore.call", trace.WithAttributes(
		attribute.String("rowstore.method", method),
		attribute.String("rowstore.table", table),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		storeCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitial
	bo.MaxInterval = retryMax
	bo.MaxElapsedTime = 0

	op := func() error {
		if err := b.c.limiter.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := b.do(ctx, method, table, q, body, out)
		if err == nil {
			storeRequestsTotal.WithLabelValues(method, "ok").Inc()
			return nil
		}
		if se := asStoreError(err); se != nil && se.Transient() {
			storeRequestsTotal.WithLabelValues(method, "transient").Inc()
			storeRetriesTotal.Inc()
			return err
		}
		storeRequestsTotal.WithLabelValues(method, "fatal").Inc()
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx))
}

func (b Base) do(ctx context.Context, method, table string, q url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/v0/%s/%s", b.c.baseURL, b.id, url.PathEscape(table))
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.c.http.Do(req)
	if err != nil {
		// Treat transport-level failures as transient; the deadline and the
		// attempt cap bound the damage.
		return &StoreError{Status: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseStoreError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseStoreError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	se := &StoreError{Status: resp.StatusCode, Message: string(raw)}

	// The store answers either {"error": "NOT_FOUND"} or
	// {"error": {"type": ..., "message": ...}}.
	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Error) > 0 {
		var s string
		if json.Unmarshal(wrapped.Error, &s) == nil {
			se.Type = s
			se.Message = s
			return se
		}
		var obj struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		if json.Unmarshal(wrapped.Error, &obj) == nil {
			se.Type = obj.Type
			se.Message = obj.Message
		}
	}
	return se
}
