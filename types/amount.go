package types

import (
	"errors"
	"math/big"

	"github.com/vmihailenco/msgpack/v5"
)

// Amount is a non-negative, arbitrary-precision token quantity. It wraps
// big.Int the way rivine's StormBigInt wraps a *big.Int for storm/msgpack
// storage, except Amount additionally guarantees non-negativity and always
// round-trips through decimal strings at the JSON boundary, per the
// "do not silently truncate" rule for chain amounts.
type Amount struct {
	i *big.Int
}

// Zero is the additive identity.
var Zero = Amount{i: new(big.Int)}

// NewAmount wraps i. A nil i is treated as zero. i is not retained across
// mutation by the caller; callers must not mutate the big.Int afterwards.
func NewAmount(i *big.Int) Amount {
	if i == nil {
		return Zero
	}
	return Amount{i: new(big.Int).Set(i)}
}

// AmountFromInt64 builds an Amount from a machine integer. Negative values
// are clamped to zero.
func AmountFromInt64(v int64) Amount {
	if v < 0 {
		return Zero
	}
	return Amount{i: big.NewInt(v)}
}

// ParseAmount parses a base-10 decimal string, as produced by String.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Zero, nil
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, errors.New("types: invalid amount string " + s)
	}
	if i.Sign() < 0 {
		return Amount{}, errors.New("types: amount must be non-negative")
	}
	return Amount{i: i}, nil
}

func (a Amount) big() *big.Int {
	if a.i == nil {
		return new(big.Int)
	}
	return a.i
}

// Big returns a defensive copy of the underlying big.Int.
func (a Amount) Big() *big.Int {
	return new(big.Int).Set(a.big())
}

func (a Amount) String() string {
	return a.big().String()
}

func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) Add(b Amount) Amount {
	return Amount{i: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a-b clamped at zero, mirroring the ingest pipeline's
// "previousBalance + amount clamped at zero" rule.
func (a Amount) Sub(b Amount) Amount {
	r := new(big.Int).Sub(a.big(), b.big())
	if r.Sign() < 0 {
		r.SetInt64(0)
	}
	return Amount{i: r}
}

// AddSigned adds a signed delta and clamps the result at zero.
func (a Amount) AddSigned(delta *big.Int) Amount {
	r := new(big.Int).Add(a.big(), delta)
	if r.Sign() < 0 {
		r.SetInt64(0)
	}
	return Amount{i: r}
}

// Retention computes currentBalance / firstBuyAmount as a float64, per the
// K Calculator's retention formula. Returns 1.0 when firstBuyAmount is zero.
func Retention(current, firstBuy Amount) float64 {
	if firstBuy.IsZero() {
		return 1.0
	}
	cf := new(big.Float).SetInt(current.big())
	ff := new(big.Float).SetInt(firstBuy.big())
	ratio, _ := new(big.Float).Quo(cf, ff).Float64()
	return ratio
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

var (
	_ msgpack.CustomEncoder = (*Amount)(nil)
	_ msgpack.CustomDecoder = (*Amount)(nil)
)

// EncodeMsgpack stores the amount as its big-endian magnitude bytes, the
// same encoding rivine's StormBigInt uses for storm/msgpack persistence.
func (a Amount) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeBytes(a.big().Bytes())
}

func (a *Amount) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	a.i = new(big.Int).SetBytes(b)
	return nil
}
