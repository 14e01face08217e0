// Package jsonfile reads and writes the queue and result documents shared with the mod.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sudoservertools/sstbridge/internal/model"
	"github.com/sudoservertools/sstbridge/internal/storage"
)

// ErrMalformed marks a document that exists but cannot be parsed.
var ErrMalformed = errors.New("malformed document")

// DecodeQueue parses a queue document. Empty input is an empty document.
func DecodeQueue(data []byte) (model.QueueFile, error) {
	var q model.QueueFile
	if len(bytes.TrimSpace(data)) == 0 {
		return q, nil
	}
	if err := json.Unmarshal(data, &q); err != nil {
		return model.QueueFile{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return q, nil
}

// DecodeResults parses a result document. Legacy "completed" statuses are read as success.
func DecodeResults(data []byte) (model.ResultFile, error) {
	var f model.ResultFile
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return model.ResultFile{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range f.Requests {
		if st, err := model.ParseStatus(string(f.Requests[i].Status)); err == nil {
			f.Requests[i].Status = st
		}
	}
	return f, nil
}

// EncodeQueue renders q with two-space indentation, matching the files the mod writes.
func EncodeQueue(q model.QueueFile) ([]byte, error) {
	if q.Requests == nil {
		q.Requests = []model.Request{}
	}
	return encode(q)
}

// EncodeResults renders f with two-space indentation.
func EncodeResults(f model.ResultFile) ([]byte, error) {
	if f.Requests == nil {
		f.Requests = []model.Result{}
	}
	return encode(f)
}

func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// ReadQueue loads a queue document from s. A missing file is an empty document; a
// malformed one returns ErrMalformed together with the raw bytes so the caller can
// quarantine them.
func ReadQueue(ctx context.Context, s storage.Store, path string) (model.QueueFile, []byte, error) {
	data, err := s.Read(ctx, path)
	if errors.Is(err, storage.ErrNotExist) {
		return model.QueueFile{}, nil, nil
	}
	if err != nil {
		return model.QueueFile{}, nil, err
	}
	q, err := DecodeQueue(data)
	if err != nil {
		return model.QueueFile{}, data, fmt.Errorf("%s: %w", path, err)
	}
	return q, data, nil
}

// ReadResults is ReadQueue for result documents.
func ReadResults(ctx context.Context, s storage.Store, path string) (model.ResultFile, []byte, error) {
	data, err := s.Read(ctx, path)
	if errors.Is(err, storage.ErrNotExist) {
		return model.ResultFile{}, nil, nil
	}
	if err != nil {
		return model.ResultFile{}, nil, err
	}
	f, err := DecodeResults(data)
	if err != nil {
		return model.ResultFile{}, data, fmt.Errorf("%s: %w", path, err)
	}
	return f, data, nil
}

// WriteQueue encodes q and replaces the file.
func WriteQueue(ctx context.Context, s storage.Store, path string, q model.QueueFile) error {
	data, err := EncodeQueue(q)
	if err != nil {
		return err
	}
	return s.Write(ctx, path, data)
}

// WriteResults encodes f and replaces the file.
func WriteResults(ctx context.Context, s storage.Store, path string, f model.ResultFile) error {
	data, err := EncodeResults(f)
	if err != nil {
		return err
	}
	return s.Write(ctx, path, data)
}
