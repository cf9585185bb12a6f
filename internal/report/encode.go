package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Encode writes r as indented JSON.
func Encode(w io.Writer, r *BenchmarkResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Decode reads one result written by Encode.
func Decode(rd io.Reader) (*BenchmarkResult, error) {
	var r BenchmarkResult
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// Marshal and Unmarshal are the byte-slice forms of Encode and Decode.
func Marshal(r *BenchmarkResult) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func Unmarshal(data []byte) (*BenchmarkResult, error) {
	var r BenchmarkResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

func WriteFile(path string, r *BenchmarkResult) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func ReadFile(path string) (*BenchmarkResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}
