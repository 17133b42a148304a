package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/reservectl/internal/testutil/testlog"
	"github.com/gagliardetto/solana-go"
)

type codedErr struct{ code uint32 }

func (e codedErr) Error() string { return fmt.Sprintf("coded %d", e.code) }
func (e codedErr) Code() uint32  { return e.code }

func TestDecodeMintLayout(t *testing.T) {
	testlog.Start(t)
	in := MintPayload{Amount: 2_000_000_000, CollateralType: 1, CollateralAmount: 10_000_000_000}
	raw := in.Encode()
	if len(raw) != MintPayloadLen {
		t.Fatalf("unexpected encoded length: %d", len(raw))
	}
	// amount is little-endian in the first 8 bytes
	if raw[0] != 0x00 || raw[1] != 0x94 || raw[2] != 0x35 || raw[3] != 0x77 {
		t.Fatalf("unexpected amount bytes: % x", raw[:8])
	}
	out, err := DecodeMint(raw)
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}
	if out != in {
		t.Fatalf("mint mismatch: got=%+v want=%+v", out, in)
	}
}

func TestDecodeShortPayloadsFailValidation(t *testing.T) {
	testlog.Start(t)
	decoders := map[string]func([]byte) error{
		"init":         func(b []byte) error { _, err := DecodeInit(b); return err },
		"params":       func(b []byte) error { _, err := DecodeParams(b); return err },
		"emergency":    func(b []byte) error { _, err := DecodeEmergency(b); return err },
		"mint":         func(b []byte) error { _, err := DecodeMint(b); return err },
		"burn":         func(b []byte) error { _, err := DecodeBurn(b); return err },
		"selector":     func(b []byte) error { _, err := DecodeSelector(b); return err },
		"solvency":     func(b []byte) error { _, err := DecodeSolvency(b); return err },
		"distribution": func(b []byte) error { _, err := DecodeDistribution(b); return err },
	}
	for name, decode := range decoders {
		if err := decode([]byte{}); !errors.Is(err, ErrParameterValidationFailed) {
			t.Fatalf("%s: expected ErrParameterValidationFailed, got %v", name, err)
		}
	}
	if _, err := DecodeInit(make([]byte, InitPayloadLen-1)); !errors.Is(err, ErrParameterValidationFailed) {
		t.Fatalf("expected 159-byte init payload to fail, got %v", err)
	}
	// eight bytes cannot carry selector + u64
	if _, err := DecodeParams(make([]byte, 8)); !errors.Is(err, ErrParameterValidationFailed) {
		t.Fatalf("expected 8-byte params payload to fail, got %v", err)
	}
}

func TestDecodeInitOrder(t *testing.T) {
	testlog.Start(t)
	in := InitPayload{
		TokenIssuer:  solana.NewWallet().PublicKey(),
		YieldToken:   solana.NewWallet().PublicKey(),
		SOLStrategy:  solana.NewWallet().PublicKey(),
		USDCStrategy: solana.NewWallet().PublicKey(),
		Accelerator:  solana.NewWallet().PublicKey(),
	}
	raw := in.Encode()
	if len(raw) != 160 {
		t.Fatalf("unexpected init length: %d", len(raw))
	}
	out, err := DecodeInit(raw)
	if err != nil {
		t.Fatalf("decode init: %v", err)
	}
	if out != in {
		t.Fatalf("init mismatch")
	}
	if !out.SOLStrategy.Equals(solana.PublicKeyFromBytes(raw[64:96])) {
		t.Fatalf("sol strategy must be the third identifier")
	}
}

func TestDistributionLayout(t *testing.T) {
	testlog.Start(t)
	in := DistributionPayload{TotalYield: 1_000_000_000, EligibleStakers: 12, TreasuryFeeBps: 2000}
	raw := in.Encode()
	if len(raw) != 14 {
		t.Fatalf("unexpected distribution length: %d", len(raw))
	}
	out, err := DecodeDistribution(raw)
	if err != nil || out != in {
		t.Fatalf("distribution mismatch: got=%+v err=%v", out, err)
	}
}

func TestCodeMapping(t *testing.T) {
	testlog.Start(t)
	if got := Code(nil); got != CodeOK {
		t.Fatalf("expected ok code, got %d", got)
	}
	wrapped := fmt.Errorf("handler: %w", ErrYieldHarvestingFailed)
	if got := Code(wrapped); got != CodeYieldHarvestingFailed {
		t.Fatalf("unexpected code: %d", got)
	}
	batch := &BatchError{Index: 2, Opcode: OpMint, Err: ErrInsufficientCollateralization}
	if got := Code(batch); got != CodeInsufficientCollateralization {
		t.Fatalf("batch error should surface sub-op code, got %d", got)
	}
	collab := Collaborator("custody", "accept", codedErr{code: 77})
	if got := Code(collab); got != 77 {
		t.Fatalf("expected collaborator code 77, got %d", got)
	}
	if Collaborator("custody", "accept", nil) != nil {
		t.Fatalf("nil collaborator error must stay nil")
	}
}

func TestWindowSelectsByIndex(t *testing.T) {
	testlog.Start(t)
	accts := []Account{
		{Key: solana.NewWallet().PublicKey()},
		{Key: solana.NewWallet().PublicKey(), Signer: true},
	}
	win, err := Window(accts, []uint8{1, 0})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if !win[0].Signer || !win[1].Key.Equals(accts[0].Key) {
		t.Fatalf("unexpected window: %+v", win)
	}
	if _, err := Window(accts, []uint8{2}); !errors.Is(err, ErrInvalidInstructionData) {
		t.Fatalf("expected ErrInvalidInstructionData, got %v", err)
	}
}

func TestOpcodeTable(t *testing.T) {
	testlog.Start(t)
	if BatchAllowed(OpBatch) {
		t.Fatalf("nested batch must never be allowed")
	}
	if !BatchAllowed(OpMint) || BatchAllowed(OpEmergencyPause) {
		t.Fatalf("unexpected batch allow-list")
	}
	if Opcode(3).Known() {
		t.Fatalf("opcode 3 is not in the table")
	}
	if OpMonitorHealth.String() != "monitor_health" || Opcode(3).String() != "opcode(3)" {
		t.Fatalf("unexpected opcode names")
	}
}
