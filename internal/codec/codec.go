// Package codec serializes analysis documents for storage.
//
// Documents are JSON, gzip-compressed when written. Decode accepts both
// compressed and plain payloads so rows written by older releases and
// documents uploaded by hand keep loading.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// ContentType is the media type recorded for stored documents.
const ContentType = "application/gzip"

var gzipMagic = []byte{0x1f, 0x8b}

// EncodeProducts serializes the product list of an analysis.
func EncodeProducts(products []domain.Product) ([]byte, error) {
	if products == nil {
		products = []domain.Product{}
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if err := json.NewEncoder(zw).Encode(products); err != nil {
		zw.Close()
		return nil, fmt.Errorf("encode products: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress products: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeProducts reverses EncodeProducts. Plain JSON is accepted too.
func DecodeProducts(data []byte) ([]domain.Product, error) {
	var r io.Reader = bytes.NewReader(data)
	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress products: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var products []domain.Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}
