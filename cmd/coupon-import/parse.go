package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/kart-coupons/internal/domain/coupon"
)

const (
	naiveLayout = "2006-01-02T15:04:05"
	maxLineSize = 1 << 20
)

// record is one line of an import file.
type record struct {
	Type           string          `json:"type"`
	Details        json.RawMessage `json:"details"`
	IsActive       *bool           `json:"is_active"`
	ExpirationDate *string         `json:"expiration_date"`
}

// lineError reports a rejected line.
type lineError struct {
	Path string
	Line int
	Err  error
}

func (e *lineError) Error() string {
	return e.Path + ":" + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *lineError) Unwrap() error { return e.Err }

// parseLine decodes and validates one import line.
func parseLine(line []byte) (coupon.CreateRequest, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return coupon.CreateRequest{}, errors.Wrap(err, "decode")
	}
	if len(rec.Details) == 0 {
		return coupon.CreateRequest{}, errors.New("details is required")
	}
	typ, err := coupon.ParseType(rec.Type)
	if err != nil {
		return coupon.CreateRequest{}, err
	}
	details, err := coupon.ParseDetails(typ, rec.Details)
	if err != nil {
		return coupon.CreateRequest{}, err
	}

	req := coupon.CreateRequest{Details: details, Active: rec.IsActive}
	if rec.ExpirationDate != nil {
		t, err := parseTimestamp(*rec.ExpirationDate)
		if err != nil {
			return coupon.CreateRequest{}, errors.Wrap(err, "expiration_date")
		}
		req.ExpiresAt = &t
	}
	return req, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return v.Local(), nil
	}
	return time.Parse(naiveLayout, strings.TrimSuffix(s, "Z"))
}

// fileResult holds the coupons accepted from one file and the lines rejected.
type fileResult struct {
	requests []coupon.CreateRequest
	rejected []*lineError
}

// readFile parses every non-blank line of a gzip-compressed JSONL file.
func readFile(ctx context.Context, path string) (fileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return fileResult{}, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return readLines(ctx, path, gz)
}

func readLines(ctx context.Context, path string, r io.Reader) (fileResult, error) {
	var res fileResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		req, err := parseLine(line)
		if err != nil {
			res.rejected = append(res.rejected, &lineError{Path: path, Line: n, Err: err})
			continue
		}
		res.requests = append(res.requests, req)
	}

	if err := scanner.Err(); err != nil {
		return res, errors.Wrapf(err, "scan %s", path)
	}
	return res, nil
}
