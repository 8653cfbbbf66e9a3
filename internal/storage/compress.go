package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	errCodec  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			errCodec = fmt.Errorf("ошибка создания zstd encoder: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			errCodec = fmt.Errorf("ошибка создания zstd decoder: %w", err)
			return
		}
		encoder, decoder = enc, dec
	})
	return encoder, decoder, errCodec
}

// Compress сжимает данные zstd
func Compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

// Decompress распаковывает данные, сжатые Compress
func Decompress(data []byte) ([]byte, error) {
	_, dec, err := zstdCodec()
	if err != nil {
		return nil, err
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки снимка: %w", err)
	}
	return out, nil
}

// CompressedRepo сжимает снимки перед записью во вложенное хранилище
type CompressedRepo struct {
	SnapshotRepo
}

// NewCompressedRepo оборачивает хранилище сжатием
func NewCompressedRepo(inner SnapshotRepo) *CompressedRepo {
	return &CompressedRepo{SnapshotRepo: inner}
}

// Save сжимает и сохраняет снимок
func (r *CompressedRepo) Save(ctx context.Context, name string, data []byte) error {
	packed, err := Compress(data)
	if err != nil {
		return err
	}
	return r.SnapshotRepo.Save(ctx, name, packed)
}

// Load загружает и распаковывает снимок
func (r *CompressedRepo) Load(ctx context.Context, name string) ([]byte, bool, error) {
	data, found, err := r.SnapshotRepo.Load(ctx, name)
	if err != nil || !found {
		return nil, found, err
	}
	out, err := Decompress(data)
	if err != nil {
		return nil, true, err
	}
	return out, true, nil
}
