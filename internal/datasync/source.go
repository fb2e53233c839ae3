// Package datasync seeds the dictionary table from a published dataset or a local export.
package datasync

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"resty.dev/v3"
)

const (
	DefaultDataset     = "seanghay/khmer-dictionary-44k"
	DefaultHFBaseURL   = "https://datasets-server.huggingface.co"
	DefaultHFPageSize  = 100
	defaultHFAttempts  = 4
	defaultHFRetryWait = 500 * time.Millisecond
)

// Row is one dataset record before normalization.
type Row struct {
	Word         string `json:"word"`
	PartOfSpeech string `json:"pos"`
	Definition   string `json:"definition"`
}

// Source yields every row of a dataset.
type Source interface {
	Read(ctx context.Context) ([]Row, error)
}

// HFSource pages the Hugging Face datasets-server rows endpoint.
type HFSource struct {
	httpClient *resty.Client
	dataset    string
	split      string
	pageSize   int
	attempts   uint
	retryWait  time.Duration
}

// HFOption configures an HFSource.
type HFOption func(*HFSource)

// WithPageSize sets the number of rows per request.
func WithPageSize(n int) HFOption {
	return func(s *HFSource) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithRetry sets how many times a page is attempted and the initial backoff.
func WithRetry(attempts uint, wait time.Duration) HFOption {
	return func(s *HFSource) {
		s.attempts = attempts
		s.retryWait = wait
	}
}

// NewHFSource creates a source for the train split of dataset. baseURL is empty for the public endpoint.
func NewHFSource(baseURL, dataset string, opts ...HFOption) *HFSource {
	if baseURL == "" {
		baseURL = DefaultHFBaseURL
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	client.SetHeader("Accept", "application/json")

	s := &HFSource{
		httpClient: client,
		dataset:    dataset,
		split:      "train",
		pageSize:   DefaultHFPageSize,
		attempts:   defaultHFAttempts,
		retryWait:  defaultHFRetryWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HFSource) Close() error {
	return s.httpClient.Close()
}

type rowsResponse struct {
	Rows []struct {
		RowIdx int `json:"row_idx"`
		Row    Row `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// Read fetches pages until num_rows_total rows have been seen or a page comes back empty.
func (s *HFSource) Read(ctx context.Context) ([]Row, error) {
	var rows []Row
	for offset := 0; ; offset += s.pageSize {
		page, err := s.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			rows = append(rows, r.Row)
		}
		slog.Default().Debug("fetched dataset page",
			"dataset", s.dataset,
			"offset", offset,
			"rows", len(page.Rows),
			"total", page.NumRowsTotal,
		)
		if len(page.Rows) == 0 || offset+len(page.Rows) >= page.NumRowsTotal {
			return rows, nil
		}
	}
}

func (s *HFSource) fetchPage(ctx context.Context, offset int) (*rowsResponse, error) {
	var page *rowsResponse
	if err := retry.Do(
		func() error {
			response, err := s.httpClient.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"dataset": s.dataset,
					"config":  "default",
					"split":   s.split,
					"offset":  strconv.Itoa(offset),
					"length":  strconv.Itoa(s.pageSize),
				}).
				SetResult(&rowsResponse{}).
				Get("/rows")
			if err != nil {
				return fmt.Errorf("httpClient.Get > %w", err)
			}
			if response.IsError() {
				err := fmt.Errorf("response error %d: %s", response.StatusCode(), response.String())
				if response.StatusCode() != 429 && response.StatusCode() < 500 {
					return retry.Unrecoverable(err)
				}
				return err
			}
			result, _ := response.Result().(*rowsResponse)
			if result == nil {
				return retry.Unrecoverable(errors.New("empty rows response"))
			}
			page = result
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryWait),
		retry.LastErrorOnly(true),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Default().Warn("retrying dataset page", "offset", offset, "attempt", n+1, "error", err)
		}),
	); err != nil {
		return nil, fmt.Errorf("fetch rows at offset %d: %w", offset, err)
	}
	return page, nil
}

// JSONLSource reads one JSON object per line, as produced by a dataset export.
type JSONLSource struct {
	path string
}

func NewJSONLSource(path string) *JSONLSource {
	return &JSONLSource{path: path}
}

func (s *JSONLSource) Read(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("os.Open > %w", err)
	}
	defer func() { _ = f.Close() }()
	return readJSONL(ctx, f)
}

func readJSONL(ctx context.Context, r io.Reader) ([]Row, error) {
	var rows []Row
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(text), &row); err != nil {
			return nil, fmt.Errorf("line %d: json.Unmarshal > %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner.Err > %w", err)
	}
	return rows, nil
}

// CSVSource reads a CSV file whose header names the word, pos and definition columns.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Read(ctx context.Context) ([]Row, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("os.Open > %w", err)
	}
	defer func() { _ = f.Close() }()
	return readCSV(ctx, f)
}

func readCSV(ctx context.Context, r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := map[string]int{}
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	wordCol, ok := index["word"]
	if !ok {
		return nil, errors.New("csv header has no word column")
	}
	field := func(record []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var rows []Row
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reader.Read > %w", err)
		}
		if wordCol >= len(record) {
			continue
		}
		rows = append(rows, Row{
			Word:         record[wordCol],
			PartOfSpeech: field(record, "pos"),
			Definition:   field(record, "definition"),
		})
	}
}
