package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// CodecVersion prefixes every encoded record and state.
	CodecVersion uint8 = 1

	recordBodyLen = 1 + 1 + 8 + 8 + 8 + 8 + 8 + 8 + 2 + 8 + 8
	paramsBodyLen = 2 + 8 + 8 + 2

	// RecordSize is the encoded record length including the version byte.
	RecordSize = 1 + recordBodyLen
	// StateSize is the encoded state length including the version byte.
	StateSize = 1 + 1 + solana.PublicKeyLength + 5*solana.PublicKeyLength + paramsBodyLen + recordBodyLen
)

var (
	ErrInvalidLength      = errors.New("ledger: invalid encoded length")
	ErrUnsupportedVersion = errors.New("ledger: unsupported codec version")
	ErrInvalidBool        = errors.New("ledger: invalid bool byte")
)

// EncodeRecord returns the versioned fixed-width encoding of r.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, 0, RecordSize)
	buf = append(buf, CodecVersion)
	return appendRecord(buf, r)
}

// DecodeRecord parses a versioned record.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) != RecordSize {
		return Record{}, fmt.Errorf("%w: record %d bytes, want %d", ErrInvalidLength, len(b), RecordSize)
	}
	if b[0] != CodecVersion {
		return Record{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	d := decoder{buf: b[1:]}
	r := d.record()
	return r, d.err
}

// EncodeState returns the versioned fixed-width encoding of s.
func EncodeState(s State) []byte {
	buf := make([]byte, 0, StateSize)
	buf = append(buf, CodecVersion, boolByte(s.Initialized))
	buf = append(buf, s.Authority[:]...)
	for _, id := range s.Registry.Programs() {
		buf = append(buf, id[:]...)
	}
	buf = binary.LittleEndian.AppendUint16(buf, s.Params.MinCollateralRatioBps)
	buf = binary.LittleEndian.AppendUint64(buf, s.Params.RebalanceFrequencySecs)
	buf = binary.LittleEndian.AppendUint64(buf, s.Params.YieldDistributionFreqSecs)
	buf = binary.LittleEndian.AppendUint16(buf, s.Params.EmergencyThresholdBps)
	return appendRecord(buf, s.Record)
}

// DecodeState parses a versioned state.
func DecodeState(b []byte) (State, error) {
	if len(b) != StateSize {
		return State{}, fmt.Errorf("%w: state %d bytes, want %d", ErrInvalidLength, len(b), StateSize)
	}
	if b[0] != CodecVersion {
		return State{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, b[0])
	}
	d := decoder{buf: b[1:]}
	var s State
	s.Initialized = d.bool()
	s.Authority = d.key()
	s.Registry = ProgramRegistry{
		TokenIssuer:  d.key(),
		YieldToken:   d.key(),
		SOLStrategy:  d.key(),
		USDCStrategy: d.key(),
		Accelerator:  d.key(),
	}
	s.Params = Params{
		MinCollateralRatioBps:     d.u16(),
		RebalanceFrequencySecs:    d.u64(),
		YieldDistributionFreqSecs: d.u64(),
		EmergencyThresholdBps:     d.u16(),
	}
	s.Record = d.record()
	if d.err != nil {
		return State{}, d.err
	}
	return s, nil
}

func appendRecord(buf []byte, r Record) []byte {
	buf = append(buf, boolByte(r.IsPaused), boolByte(r.EmergencyMode))
	buf = binary.LittleEndian.AppendUint64(buf, r.EmergencyOverrideCount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.LastEmergencyAction))
	buf = binary.LittleEndian.AppendUint64(buf, r.TotalMinted)
	buf = binary.LittleEndian.AppendUint64(buf, r.TotalBurned)
	buf = binary.LittleEndian.AppendUint64(buf, r.CurrentSOLTVL)
	buf = binary.LittleEndian.AppendUint64(buf, r.CurrentUSDCTVL)
	buf = binary.LittleEndian.AppendUint16(buf, r.GlobalCollateralRatio)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.LastSolvencyCheck))
	buf = binary.LittleEndian.AppendUint64(buf, r.TotalYieldHarvested)
	return buf
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// decoder reads fixed-width fields from a buffer whose length was checked up front.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

func (d *decoder) bool() bool {
	b := d.take(1)[0]
	switch b {
	case 0:
		return false
	case 1:
		return true
	default:
		if d.err == nil {
			d.err = fmt.Errorf("%w: 0x%02x at offset %d", ErrInvalidBool, b, d.off)
		}
		return false
	}
}

func (d *decoder) u16() uint16 {
	return binary.LittleEndian.Uint16(d.take(2))
}

func (d *decoder) u64() uint64 {
	return binary.LittleEndian.Uint64(d.take(8))
}

func (d *decoder) key() solana.PublicKey {
	return solana.PublicKeyFromBytes(d.take(solana.PublicKeyLength))
}

func (d *decoder) record() Record {
	return Record{
		IsPaused:               d.bool(),
		EmergencyMode:          d.bool(),
		EmergencyOverrideCount: d.u64(),
		LastEmergencyAction:    int64(d.u64()),
		TotalMinted:            d.u64(),
		TotalBurned:            d.u64(),
		CurrentSOLTVL:          d.u64(),
		CurrentUSDCTVL:         d.u64(),
		GlobalCollateralRatio:  d.u16(),
		LastSolvencyCheck:      int64(d.u64()),
		TotalYieldHarvested:    d.u64(),
	}
}
