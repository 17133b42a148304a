package protocol

import "github.com/gagliardetto/solana-go"

// Fixed payload sizes. Payloads may carry trailing bytes; only the prefix is read.
const (
	InitPayloadLen         = 5 * solana.PublicKeyLength
	ParamsPayloadLen       = 1 + 8
	EmergencyPayloadLen    = 4
	MintPayloadLen         = 8 + 1 + 8
	BurnPayloadLen         = 8 + 1 + 8
	SyncPayloadLen         = 1
	SolvencyPayloadLen     = 2
	HarvestPayloadLen      = 1
	DistributionPayloadLen = 8 + 4 + 2
	RebalancePayloadLen    = 1
)

// Instruction prepends op to payload.
func Instruction(op Opcode, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(op))
	return append(out, payload...)
}

// InitPayload lists the five program identifiers in wire order.
type InitPayload struct {
	TokenIssuer  solana.PublicKey
	YieldToken   solana.PublicKey
	SOLStrategy  solana.PublicKey
	USDCStrategy solana.PublicKey
	Accelerator  solana.PublicKey
}

func DecodeInit(data []byte) (InitPayload, error) {
	if len(data) < InitPayloadLen {
		return InitPayload{}, badParam("init payload %d bytes, need %d", len(data), InitPayloadLen)
	}
	c := NewCursor(data)
	var p InitPayload
	for _, dst := range []*solana.PublicKey{&p.TokenIssuer, &p.YieldToken, &p.SOLStrategy, &p.USDCStrategy, &p.Accelerator} {
		k, err := c.Key()
		if err != nil {
			return InitPayload{}, badParam("init payload: %v", err)
		}
		*dst = k
	}
	return p, nil
}

func (p InitPayload) Encode() []byte {
	return NewWriter(InitPayloadLen).
		Key(p.TokenIssuer).Key(p.YieldToken).Key(p.SOLStrategy).Key(p.USDCStrategy).Key(p.Accelerator).
		Bytes()
}

// ParamsPayload selects one protocol parameter and its new value.
type ParamsPayload struct {
	Selector uint8
	Value    uint64
}

func DecodeParams(data []byte) (ParamsPayload, error) {
	if len(data) < ParamsPayloadLen {
		return ParamsPayload{}, badParam("params payload %d bytes, need %d", len(data), ParamsPayloadLen)
	}
	c := NewCursor(data)
	sel, _ := c.U8()
	val, _ := c.U64()
	return ParamsPayload{Selector: sel, Value: val}, nil
}

func (p ParamsPayload) Encode() []byte {
	return NewWriter(ParamsPayloadLen).U8(p.Selector).U64(p.Value).Bytes()
}

// EmergencyPayload carries the emergency type code.
type EmergencyPayload struct {
	Type uint32
}

func DecodeEmergency(data []byte) (EmergencyPayload, error) {
	if len(data) < EmergencyPayloadLen {
		return EmergencyPayload{}, badParam("emergency payload %d bytes, need %d", len(data), EmergencyPayloadLen)
	}
	v, _ := NewCursor(data).U32()
	return EmergencyPayload{Type: v}, nil
}

func (p EmergencyPayload) Encode() []byte {
	return NewWriter(EmergencyPayloadLen).U32(p.Type).Bytes()
}

// MintPayload is the mint saga request.
type MintPayload struct {
	Amount           uint64
	CollateralType   uint8
	CollateralAmount uint64
}

func DecodeMint(data []byte) (MintPayload, error) {
	if len(data) < MintPayloadLen {
		return MintPayload{}, badParam("mint payload %d bytes, need %d", len(data), MintPayloadLen)
	}
	c := NewCursor(data)
	amount, _ := c.U64()
	typ, _ := c.U8()
	collateral, _ := c.U64()
	return MintPayload{Amount: amount, CollateralType: typ, CollateralAmount: collateral}, nil
}

func (p MintPayload) Encode() []byte {
	return NewWriter(MintPayloadLen).U64(p.Amount).U8(p.CollateralType).U64(p.CollateralAmount).Bytes()
}

// BurnPayload is the redeem saga request.
type BurnPayload struct {
	Amount             uint64
	RedeemType         uint8
	ExpectedCollateral uint64
}

func DecodeBurn(data []byte) (BurnPayload, error) {
	if len(data) < BurnPayloadLen {
		return BurnPayload{}, badParam("burn payload %d bytes, need %d", len(data), BurnPayloadLen)
	}
	c := NewCursor(data)
	amount, _ := c.U64()
	typ, _ := c.U8()
	expected, _ := c.U64()
	return BurnPayload{Amount: amount, RedeemType: typ, ExpectedCollateral: expected}, nil
}

func (p BurnPayload) Encode() []byte {
	return NewWriter(BurnPayloadLen).U64(p.Amount).U8(p.RedeemType).U64(p.ExpectedCollateral).Bytes()
}

// SelectorPayload is the one-byte mode used by sync, harvest and rebalance.
type SelectorPayload struct {
	Value uint8
}

func DecodeSelector(data []byte) (SelectorPayload, error) {
	if len(data) < 1 {
		return SelectorPayload{}, badParam("selector payload is empty")
	}
	return SelectorPayload{Value: data[0]}, nil
}

func (p SelectorPayload) Encode() []byte {
	return []byte{p.Value}
}

// SolvencyPayload carries the minimum ratio for an explicit solvency check.
type SolvencyPayload struct {
	MinRatioBps uint16
}

func DecodeSolvency(data []byte) (SolvencyPayload, error) {
	if len(data) < SolvencyPayloadLen {
		return SolvencyPayload{}, badParam("solvency payload %d bytes, need %d", len(data), SolvencyPayloadLen)
	}
	v, _ := NewCursor(data).U16()
	return SolvencyPayload{MinRatioBps: v}, nil
}

func (p SolvencyPayload) Encode() []byte {
	return NewWriter(SolvencyPayloadLen).U16(p.MinRatioBps).Bytes()
}

// DistributionPayload is the yield distribution request.
type DistributionPayload struct {
	TotalYield      uint64
	EligibleStakers uint32
	TreasuryFeeBps  uint16
}

func DecodeDistribution(data []byte) (DistributionPayload, error) {
	if len(data) < DistributionPayloadLen {
		return DistributionPayload{}, badParam("distribution payload %d bytes, need %d", len(data), DistributionPayloadLen)
	}
	c := NewCursor(data)
	total, _ := c.U64()
	stakers, _ := c.U32()
	fee, _ := c.U16()
	return DistributionPayload{TotalYield: total, EligibleStakers: stakers, TreasuryFeeBps: fee}, nil
}

func (p DistributionPayload) Encode() []byte {
	return NewWriter(DistributionPayloadLen).U64(p.TotalYield).U32(p.EligibleStakers).U16(p.TreasuryFeeBps).Bytes()
}
