// Package codec reads and writes the fixed-format waveform record layout.
// The pruning core depends only on the capability interfaces here; the SF1
// implementation below is the default collaborator.
package codec

import (
	"github.com/seisflow/seisflow/internal/model"
	"github.com/seisflow/seisflow/internal/pool"
)

// Encoding identifies the sample payload encoding of a record.
type Encoding uint8

const (
	EncodingInt16   Encoding = 0
	EncodingInt32   Encoding = 1
	EncodingFloat32 Encoding = 2
	EncodingFloat64 Encoding = 3

	// Compressed encodings are carried opaquely: records decode for header
	// purposes but cannot be re-encoded after a trim.
	EncodingSteim1 Encoding = 16
	EncodingSteim2 Encoding = 17
)

func (e Encoding) String() string {
	switch e {
	case EncodingInt16:
		return "int16"
	case EncodingInt32:
		return "int32"
	case EncodingFloat32:
		return "float32"
	case EncodingFloat64:
		return "float64"
	case EncodingSteim1:
		return "steim1"
	case EncodingSteim2:
		return "steim2"
	default:
		return "unknown"
	}
}

// SampleSize returns the encoded bytes per sample, or 0 when the encoding
// has no fixed sample width.
func (e Encoding) SampleSize() int {
	switch e {
	case EncodingInt16:
		return 2
	case EncodingInt32, EncodingFloat32:
		return 4
	case EncodingFloat64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether samples decode into the float buffer.
func (e Encoding) IsFloat() bool {
	return e == EncodingFloat32 || e == EncodingFloat64
}

// Header is the decoded fixed header of one record.
type Header struct {
	Network  string
	Station  string
	Location string
	Channel  string

	Quality      model.Quality
	Encoding     Encoding
	RecordLength int

	Start       model.Tick
	SampleRate  float64
	SampleCount int
}

// Identity returns the canonical channel key of the record.
func (h *Header) Identity() string {
	return model.JoinIdentity(h.Network, h.Station, h.Location, h.Channel)
}

// End returns the time of the last sample. A record with one sample (or
// none, or no rate) ends where it starts.
func (h *Header) End() model.Tick {
	if h.SampleCount <= 1 || h.SampleRate <= 0 {
		return h.Start
	}
	return h.Start + model.Tick(h.SampleCount-1)*model.PeriodForRate(h.SampleRate)
}

// Codec is the record codec capability consumed by the pruning core.
type Codec interface {
	// DecodeHeader decodes and validates the fixed header of raw.
	DecodeHeader(raw []byte) (*Header, error)

	// DecodeSamples decodes the header and the sample payload into buf.
	// Fails with an unsupported-encoding error for opaque encodings.
	DecodeSamples(raw []byte, buf *pool.SampleBuffer) (*Header, error)

	// Encode packs samples back into one or more encoded records of
	// hdr.RecordLength bytes. hdr.SampleCount samples are consumed from buf.
	Encode(hdr *Header, buf *pool.SampleBuffer) ([][]byte, error)

	// SupportsRepack reports whether the encoding can be re-encoded.
	SupportsRepack(e Encoding) bool

	// VerifyChecksum validates the integrity checksum of raw.
	VerifyChecksum(raw []byte) error

	// RewriteQuality replaces the quality code in raw in place and
	// recomputes the checksum. Sample bytes are untouched.
	RewriteQuality(raw []byte, q model.Quality) error
}
