// Package store provides persistence backends for IntakePipe.
//
// This file implements a Google Sheets row store. Each collection is a sheet
// (tab) name inside one spreadsheet.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	sheetsAppendRange = "A:Z"
	sheetsReadRange   = "A:Z"
	// DefaultHeaderRows is the number of header rows skipped on read.
	DefaultHeaderRows = 1
)

// ErrNoCredentials is returned when no usable service account key was found.
var ErrNoCredentials = errors.New("google service account credentials not set")

// SheetsStore appends rows to, and reads rows from, a Google spreadsheet.
type SheetsStore struct {
	svc        *sheets.Service
	sheetID    string
	headerRows int
}

var _ RowStore = (*SheetsStore)(nil)

// NewSheetsStore creates a Sheets-backed store. extra client options are
// passed to the Sheets service (endpoints, HTTP clients).
func NewSheetsStore(ctx context.Context, opts []Option, extra ...option.ClientOption) (*SheetsStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID not set")
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if len(cfg.CredentialsJSON) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	} else if len(extra) == 0 {
		return nil, ErrNoCredentials
	}
	clientOpts = append(clientOpts, extra...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		slog.Error("SheetsStore: failed to create Sheets service", "error", err)
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	headerRows := DefaultHeaderRows
	if cfg.HeaderRowsSet {
		headerRows = max(cfg.HeaderRows, 0)
	}
	slog.Debug("SheetsStore created", "headerRows", headerRows)
	return &SheetsStore{svc: svc, sheetID: cfg.SheetID, headerRows: headerRows}, nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, collection string, row []string) error {
	if collection == "" {
		return ErrUnknownCollection
	}
	values := make([]interface{}, len(row))
	for i, c := range row {
		values[i] = c
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.sheetID, collection+"!"+sheetsAppendRange, vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("SheetsStore AppendRow failed", "error", err, "collection", collection)
		return fmt.Errorf("failed to append row to sheet %s: %w", collection, err)
	}
	slog.Info("SheetsStore row appended", "collection", collection)
	return nil
}

func (s *SheetsStore) Rows(ctx context.Context, collection string) ([][]string, error) {
	if collection == "" {
		return nil, ErrUnknownCollection
	}
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.sheetID, collection+"!"+sheetsReadRange).
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("SheetsStore Rows failed", "error", err, "collection", collection)
		return nil, fmt.Errorf("failed to read sheet %s: %w", collection, err)
	}
	if len(resp.Values) <= s.headerRows {
		return nil, nil
	}
	data := resp.Values[s.headerRows:]
	out := make([][]string, len(data))
	for i, r := range data {
		cells := make([]string, len(r))
		for j, c := range r {
			if c != nil {
				cells[j] = fmt.Sprint(c)
			}
		}
		out[i] = cells
	}
	return out, nil
}

func (s *SheetsStore) Close() error { return nil }

// LoadServiceAccountJSON resolves a service account key from an inline value
// or a file path. The inline value may itself be a path, or carry a "base64:"
// prefix. Escaped newlines in private_key are expanded.
func LoadServiceAccountJSON(inline, path string) ([]byte, error) {
	payload := strings.TrimSpace(inline)

	if payload != "" && !strings.HasPrefix(payload, "{") &&
		(strings.HasPrefix(payload, "/") || strings.HasSuffix(payload, ".json")) {
		if b, err := readTrimmed(payload); err == nil {
			payload = b
		}
	}
	if payload == "" && path != "" {
		b, err := readTrimmed(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		payload = b
	}
	if payload == "" {
		return nil, ErrNoCredentials
	}

	if rest, ok := strings.CutPrefix(payload, "base64:"); ok {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid base64 service account key: %w", err)
		}
		payload = string(decoded)
	}

	var key map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &key); err != nil {
		return nil, fmt.Errorf("invalid service account JSON: %w", err)
	}
	if pk, ok := key["private_key"].(string); ok {
		key["private_key"] = strings.ReplaceAll(pk, `\n`, "\n")
	}
	return json.Marshal(key)
}

func readTrimmed(path string) (string, error) {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
