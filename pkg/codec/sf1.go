package codec

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"
	"strings"

	"github.com/seisflow/seisflow/internal/model"
	"github.com/seisflow/seisflow/internal/pool"
	seiserr "github.com/seisflow/seisflow/pkg/errors"
)

// SF1 record layout: a fixed 64-byte big-endian header followed by the
// sample payload, zero padded to RecordLength.
//
//	 0..3   magic "SF1\x00"
//	 4      header version (1)
//	 5      encoding
//	 6      quality code
//	 8..9   record length (uint16)
//	10..11  network  (space padded)
//	12..16  station
//	17..18  location
//	19..21  channel
//	24..31  start time (int64 ns since epoch)
//	32..39  sample rate (float64 bits)
//	40..43  sample count (uint32)
//	44..47  CRC-32C over the whole record with this field zeroed
const (
	HeaderSize = 64

	headerVersion = 1

	offMagic    = 0
	offVersion  = 4
	offEncoding = 5
	offQuality  = 6
	offRecLen   = 8
	offNetwork  = 10
	offStation  = 12
	offLocation = 17
	offChannel  = 19
	offStart    = 24
	offRate     = 32
	offCount    = 40
	offCRC      = 44
)

var magic = [4]byte{'S', 'F', '1', 0}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// SF1 implements Codec for the SF1 fixed-record format.
type SF1 struct{}

// NewSF1 returns the SF1 codec.
func NewSF1() *SF1 {
	return &SF1{}
}

// SupportsRepack reports whether the encoding can be re-encoded after a trim.
func (c *SF1) SupportsRepack(e Encoding) bool {
	return e.SampleSize() > 0
}

// DecodeHeader decodes and validates the fixed header of raw.
func (c *SF1) DecodeHeader(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, seiserr.New(seiserr.CodeBadRecord, "record shorter than header").
			WithContext("len", len(raw))
	}
	if [4]byte(raw[offMagic:offMagic+4]) != magic {
		return nil, seiserr.New(seiserr.CodeBadRecord, "bad magic")
	}
	if raw[offVersion] != headerVersion {
		return nil, seiserr.New(seiserr.CodeBadRecord, "unsupported header version").
			WithContext("version", raw[offVersion])
	}

	recLen := int(binary.BigEndian.Uint16(raw[offRecLen:]))
	if recLen < HeaderSize {
		return nil, seiserr.New(seiserr.CodeBadRecord, "record length below header size").
			WithContext("record_length", recLen)
	}

	h := &Header{
		Network:      unpad(raw[offNetwork : offNetwork+2]),
		Station:      unpad(raw[offStation : offStation+5]),
		Location:     unpad(raw[offLocation : offLocation+2]),
		Channel:      unpad(raw[offChannel : offChannel+3]),
		Quality:      model.Quality(raw[offQuality]),
		Encoding:     Encoding(raw[offEncoding]),
		RecordLength: recLen,
		Start:        model.Tick(binary.BigEndian.Uint64(raw[offStart:])),
		SampleRate:   math.Float64frombits(binary.BigEndian.Uint64(raw[offRate:])),
		SampleCount:  int(binary.BigEndian.Uint32(raw[offCount:])),
	}
	return h, nil
}

// DecodeSamples decodes the header and the sample payload into buf.
func (c *SF1) DecodeSamples(raw []byte, buf *pool.SampleBuffer) (*Header, error) {
	h, err := c.DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	size := h.Encoding.SampleSize()
	if size == 0 {
		return nil, seiserr.UnsupportedEncoding(uint8(h.Encoding))
	}
	if len(raw) < HeaderSize+h.SampleCount*size {
		return nil, seiserr.New(seiserr.CodeDecodeFailed, "payload truncated").
			WithContext("samples", h.SampleCount)
	}

	payload := raw[HeaderSize:]
	buf.Reset()
	for i := 0; i < h.SampleCount; i++ {
		p := payload[i*size:]
		switch h.Encoding {
		case EncodingInt16:
			buf.Ints = append(buf.Ints, int32(int16(binary.BigEndian.Uint16(p))))
		case EncodingInt32:
			buf.Ints = append(buf.Ints, int32(binary.BigEndian.Uint32(p)))
		case EncodingFloat32:
			buf.Floats = append(buf.Floats, float64(math.Float32frombits(binary.BigEndian.Uint32(p))))
		case EncodingFloat64:
			buf.Floats = append(buf.Floats, math.Float64frombits(binary.BigEndian.Uint64(p)))
		}
	}
	return h, nil
}

// Encode packs hdr.SampleCount samples from buf into one or more records.
// A sample run too long for one record spills into additional records with
// advanced start times.
func (c *SF1) Encode(hdr *Header, buf *pool.SampleBuffer) ([][]byte, error) {
	size := hdr.Encoding.SampleSize()
	if size == 0 {
		return nil, seiserr.UnsupportedEncoding(uint8(hdr.Encoding))
	}
	if hdr.RecordLength < HeaderSize+size {
		return nil, seiserr.New(seiserr.CodeBadRecord, "record length too small for samples").
			WithContext("record_length", hdr.RecordLength)
	}

	perRecord := (hdr.RecordLength - HeaderSize) / size
	period := model.PeriodForRate(hdr.SampleRate)

	var out [][]byte
	for consumed := 0; consumed < hdr.SampleCount; {
		n := hdr.SampleCount - consumed
		if n > perRecord {
			n = perRecord
		}

		rec := make([]byte, hdr.RecordLength)
		copy(rec[offMagic:], magic[:])
		rec[offVersion] = headerVersion
		rec[offEncoding] = byte(hdr.Encoding)
		rec[offQuality] = byte(hdr.Quality)
		binary.BigEndian.PutUint16(rec[offRecLen:], uint16(hdr.RecordLength))
		pad(rec[offNetwork:offNetwork+2], hdr.Network)
		pad(rec[offStation:offStation+5], hdr.Station)
		pad(rec[offLocation:offLocation+2], hdr.Location)
		pad(rec[offChannel:offChannel+3], hdr.Channel)
		binary.BigEndian.PutUint64(rec[offStart:], uint64(hdr.Start+model.Tick(consumed)*period))
		binary.BigEndian.PutUint64(rec[offRate:], math.Float64bits(hdr.SampleRate))
		binary.BigEndian.PutUint32(rec[offCount:], uint32(n))

		payload := rec[HeaderSize:]
		for i := 0; i < n; i++ {
			p := payload[i*size:]
			switch hdr.Encoding {
			case EncodingInt16:
				binary.BigEndian.PutUint16(p, uint16(int16(buf.Ints[consumed+i])))
			case EncodingInt32:
				binary.BigEndian.PutUint32(p, uint32(buf.Ints[consumed+i]))
			case EncodingFloat32:
				binary.BigEndian.PutUint32(p, math.Float32bits(float32(buf.Floats[consumed+i])))
			case EncodingFloat64:
				binary.BigEndian.PutUint64(p, math.Float64bits(buf.Floats[consumed+i]))
			}
		}

		binary.BigEndian.PutUint32(rec[offCRC:], checksum(rec))
		out = append(out, rec)
		consumed += n
	}
	return out, nil
}

// VerifyChecksum validates the CRC-32C of raw.
func (c *SF1) VerifyChecksum(raw []byte) error {
	if len(raw) < HeaderSize {
		return seiserr.New(seiserr.CodeBadRecord, "record shorter than header")
	}
	want := binary.BigEndian.Uint32(raw[offCRC:])
	if got := checksum(raw); got != want {
		return seiserr.New(seiserr.CodeBadRecord, "checksum mismatch").
			WithContext("want", want).
			WithContext("got", got)
	}
	return nil
}

// RewriteQuality replaces the quality code in raw in place and recomputes
// the checksum. Sample bytes are untouched.
func (c *SF1) RewriteQuality(raw []byte, q model.Quality) error {
	if len(raw) < HeaderSize {
		return seiserr.New(seiserr.CodeBadRecord, "record shorter than header")
	}
	raw[offQuality] = byte(q)
	binary.BigEndian.PutUint32(raw[offCRC:], checksum(raw))
	return nil
}

// checksum computes the record CRC with the CRC field treated as zero.
func checksum(raw []byte) uint32 {
	crc := crc32.Update(0, castagnoli, raw[:offCRC])
	crc = crc32.Update(crc, castagnoli, []byte{0, 0, 0, 0})
	return crc32.Update(crc, castagnoli, raw[offCRC+4:])
}

// Scan walks every record in a source file, calling fn with the decoded
// header and the record's byte range. Records in one file may differ in
// record length; each header carries its own.
func Scan(c Codec, r io.ReaderAt, size int64, fn func(h *Header, offset int64, length int32) error) error {
	hdrBuf := make([]byte, HeaderSize)
	var offset int64
	for offset < size {
		if _, err := r.ReadAt(hdrBuf, offset); err != nil {
			return seiserr.Wrap(err, seiserr.CodeFileRead, "read record header").
				WithContext("offset", offset)
		}
		h, err := c.DecodeHeader(hdrBuf)
		if err != nil {
			return seiserr.Wrap(err, seiserr.CodeBadRecord, "decode record header").
				WithContext("offset", offset)
		}
		if offset+int64(h.RecordLength) > size {
			return seiserr.New(seiserr.CodeBadRecord, "record extends past end of file").
				WithContext("offset", offset)
		}
		if err := fn(h, offset, int32(h.RecordLength)); err != nil {
			return err
		}
		offset += int64(h.RecordLength)
	}
	return nil
}

func unpad(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}

func pad(dst []byte, s string) {
	for i := range dst {
		if i < len(s) {
			dst[i] = s[i]
		} else {
			dst[i] = ' '
		}
	}
}
