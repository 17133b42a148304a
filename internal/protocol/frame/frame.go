// Package frame is the invocation envelope used by the CLI, the replay log
// and the admin HTTP surface: a fixed big-endian header, the account list,
// then the instruction data.
//
//	[magic:4 "RSVX"][version:2][account_count:2][data_len:4]
//	account_count x ( [key:32][flags:1] )
//	[data:data_len]
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/reservectl/internal/protocol"
	"github.com/gagliardetto/solana-go"
)

const (
	Magic   uint32 = 0x52535658 // "RSVX"
	Version uint16 = 1
)

const (
	FixedHeaderLen = 12
	AccountLen     = solana.PublicKeyLength + 1
)

const (
	FlagSigner   uint8 = 0x01
	FlagWritable uint8 = 0x02
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrBadMagic           = errors.New("frame: bad magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrTooManyAccounts    = errors.New("frame: too many accounts")
	ErrDataTooLarge       = errors.New("frame: instruction data too large")
	ErrUnknownFlags       = errors.New("frame: unknown account flags")
	ErrTrailingBytes      = errors.New("frame: trailing bytes")
)

// Header is the fixed wire header.
type Header struct {
	Magic        uint32
	Version      uint16
	AccountCount uint16
	DataLen      uint32
}

// Frame is one complete invocation.
type Frame struct {
	Accounts []protocol.Account
	Data     []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxAccounts  uint16
	MaxDataBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxAccounts:  64,
		MaxDataBytes: 1232,
	}
}

func (l Limits) check(accounts int, data int) error {
	if accounts > int(l.MaxAccounts) {
		return fmt.Errorf("%w: %d > %d", ErrTooManyAccounts, accounts, l.MaxAccounts)
	}
	if data > int(l.MaxDataBytes) {
		return fmt.Errorf("%w: %d > %d", ErrDataTooLarge, data, l.MaxDataBytes)
	}
	return nil
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if err := limits.check(int(h.AccountCount), int(h.DataLen)); err != nil {
		return Frame{}, err
	}

	raw := make([]byte, int(h.AccountCount)*AccountLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return Frame{}, fmt.Errorf("frame: read accounts: %w", err)
	}
	accounts := make([]protocol.Account, 0, h.AccountCount)
	for i := 0; i < int(h.AccountCount); i++ {
		chunk := raw[i*AccountLen : (i+1)*AccountLen]
		flags := chunk[solana.PublicKeyLength]
		if flags&^(FlagSigner|FlagWritable) != 0 {
			return Frame{}, fmt.Errorf("%w: account %d flags %#x", ErrUnknownFlags, i, flags)
		}
		accounts = append(accounts, protocol.Account{
			Key:      solana.PublicKeyFromBytes(chunk[:solana.PublicKeyLength]),
			Signer:   flags&FlagSigner != 0,
			Writable: flags&FlagWritable != 0,
		})
	}

	data := make([]byte, h.DataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return Frame{}, fmt.Errorf("frame: read data: %w", err)
	}
	return Frame{Accounts: accounts, Data: data}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if err := limits.check(len(f.Accounts), len(f.Data)); err != nil {
		return err
	}
	h := Header{
		Magic:        Magic,
		Version:      Version,
		AccountCount: uint16(len(f.Accounts)),
		DataLen:      uint32(len(f.Data)),
	}
	buf := make([]byte, 0, FixedHeaderLen+len(f.Accounts)*AccountLen+len(f.Data))
	buf = append(buf, EncodeHeader(h)...)
	for _, a := range f.Accounts {
		var flags uint8
		if a.Signer {
			flags |= FlagSigner
		}
		if a.Writable {
			flags |= FlagWritable
		}
		buf = append(buf, a.Key[:]...)
		buf = append(buf, flags)
	}
	buf = append(buf, f.Data...)
	_, err := w.Write(buf)
	return err
}

// Marshal encodes f with default limits.
func Marshal(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f, DefaultLimits()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes exactly one frame from b.
func Unmarshal(b []byte, limits Limits) (Frame, error) {
	r := bytes.NewReader(b)
	f, err := ReadFrame(r, limits)
	if err != nil {
		return Frame{}, err
	}
	if r.Len() != 0 {
		return Frame{}, fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	return f, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.AccountCount)
	binary.BigEndian.PutUint32(buf[8:12], h.DataLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:        binary.BigEndian.Uint32(b[0:4]),
		Version:      binary.BigEndian.Uint16(b[4:6]),
		AccountCount: binary.BigEndian.Uint16(b[6:8]),
		DataLen:      binary.BigEndian.Uint32(b[8:12]),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: %#x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}
