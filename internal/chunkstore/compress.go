package chunkstore

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	encOnce sync.Once
	encoder *zstd.Encoder
	decOnce sync.Once
	decoder *zstd.Decoder
)

func encode(data []byte) []byte {
	encOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			panic(err)
		}
		encoder = enc
	})
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

func decode(data []byte) ([]byte, error) {
	decOnce.Do(func() {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			panic(err)
		}
		decoder = dec
	})
	return decoder.DecodeAll(data, make([]byte, 0, len(data)*4))
}
