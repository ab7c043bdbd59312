package covenant

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

func hashItem(b []byte) (types.NameHash, error) {
	if len(b) != types.HashSize {
		return types.NameHash{}, fmt.Errorf("covenant: expected %d-byte hash item, got %d", types.HashSize, len(b))
	}
	var h types.NameHash
	copy(h[:], b)
	return h, nil
}

func u32Item(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("covenant: expected 4-byte uint32 item, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func u64Item(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("covenant: expected 8-byte uint64 item, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

func u32Bytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// Open carries the OPEN covenant: nameHash, raw name.
type Open struct {
	NameHash types.NameHash
	Name     string
}

// NewOpen builds an OPEN covenant.
func NewOpen(o Open) Covenant {
	return Covenant{Type: TypeOPEN, Items: [][]byte{o.NameHash[:], []byte(o.Name)}}
}

// ParseOpen decodes the OPEN covenant items.
func ParseOpen(c Covenant) (Open, error) {
	if c.Type != TypeOPEN || len(c.Items) != 2 {
		return Open{}, fmt.Errorf("covenant: not a well-formed OPEN")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Open{}, err
	}
	return Open{NameHash: h, Name: string(c.Items[1])}, nil
}

// Bid carries the BID covenant: nameHash, auction start height, raw name,
// blinded-bid hash.
type Bid struct {
	NameHash    types.NameHash
	StartHeight uint32
	Name        string
	Blind       types.Hash
}

// NewBid builds a BID covenant.
func NewBid(b Bid) Covenant {
	return Covenant{Type: TypeBID, Items: [][]byte{b.NameHash[:], u32Bytes(b.StartHeight), []byte(b.Name), b.Blind[:]}}
}

// ParseBid decodes the BID covenant items.
func ParseBid(c Covenant) (Bid, error) {
	if c.Type != TypeBID || len(c.Items) != 4 {
		return Bid{}, fmt.Errorf("covenant: not a well-formed BID")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Bid{}, err
	}
	height, err := u32Item(c.Items[1])
	if err != nil {
		return Bid{}, err
	}
	blind, err := hashItem(c.Items[3])
	if err != nil {
		return Bid{}, err
	}
	return Bid{NameHash: h, StartHeight: height, Name: string(c.Items[2]), Blind: types.Hash(blind)}, nil
}

// Reveal carries the REVEAL covenant: nameHash, nonce.
type Reveal struct {
	NameHash types.NameHash
	Nonce    [32]byte
}

// NewReveal builds a REVEAL covenant.
func NewReveal(r Reveal) Covenant {
	return Covenant{Type: TypeREVEAL, Items: [][]byte{r.NameHash[:], r.Nonce[:]}}
}

// ParseReveal decodes the REVEAL covenant items.
func ParseReveal(c Covenant) (Reveal, error) {
	if c.Type != TypeREVEAL || len(c.Items) != 2 {
		return Reveal{}, fmt.Errorf("covenant: not a well-formed REVEAL")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Reveal{}, err
	}
	if len(c.Items[1]) != 32 {
		return Reveal{}, fmt.Errorf("covenant: REVEAL nonce must be 32 bytes")
	}
	var nonce [32]byte
	copy(nonce[:], c.Items[1])
	return Reveal{NameHash: h, Nonce: nonce}, nil
}

// Redeem carries the REDEEM covenant: nameHash.
type Redeem struct {
	NameHash types.NameHash
}

// NewRedeem builds a REDEEM covenant.
func NewRedeem(nameHash types.NameHash) Covenant {
	return Covenant{Type: TypeREDEEM, Items: [][]byte{nameHash[:]}}
}

// ParseRedeem decodes the REDEEM covenant items.
func ParseRedeem(c Covenant) (Redeem, error) {
	if c.Type != TypeREDEEM || len(c.Items) != 1 {
		return Redeem{}, fmt.Errorf("covenant: not a well-formed REDEEM")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Redeem{}, err
	}
	return Redeem{NameHash: h}, nil
}

// Register carries REGISTER/UPDATE: nameHash, resource data blob.
type Register struct {
	NameHash types.NameHash
	Data     []byte
}

// NewRegister builds a REGISTER covenant.
func NewRegister(r Register) Covenant {
	return Covenant{Type: TypeREGISTER, Items: [][]byte{r.NameHash[:], r.Data}}
}

// NewUpdate builds an UPDATE covenant.
func NewUpdate(r Register) Covenant {
	return Covenant{Type: TypeUPDATE, Items: [][]byte{r.NameHash[:], r.Data}}
}

// ParseRegister decodes REGISTER/UPDATE covenant items.
func ParseRegister(c Covenant) (Register, error) {
	if (c.Type != TypeREGISTER && c.Type != TypeUPDATE) || len(c.Items) != 2 {
		return Register{}, fmt.Errorf("covenant: not a well-formed REGISTER/UPDATE")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Register{}, err
	}
	return Register{NameHash: h, Data: c.Items[1]}, nil
}

// Renew carries the RENEW covenant: nameHash, recent block hash commitment.
type Renew struct {
	NameHash  types.NameHash
	BlockHash types.Hash
}

// NewRenew builds a RENEW covenant.
func NewRenew(r Renew) Covenant {
	return Covenant{Type: TypeRENEW, Items: [][]byte{r.NameHash[:], r.BlockHash[:]}}
}

// ParseRenew decodes the RENEW covenant items.
func ParseRenew(c Covenant) (Renew, error) {
	if c.Type != TypeRENEW || len(c.Items) != 2 {
		return Renew{}, fmt.Errorf("covenant: not a well-formed RENEW")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Renew{}, err
	}
	bh, err := hashItem(c.Items[1])
	if err != nil {
		return Renew{}, err
	}
	return Renew{NameHash: h, BlockHash: types.Hash(bh)}, nil
}

// Transfer carries the TRANSFER covenant: nameHash, destination address
// version + program.
type Transfer struct {
	NameHash types.NameHash
	Address  types.Address
}

// NewTransfer builds a TRANSFER covenant.
func NewTransfer(t Transfer) Covenant {
	return Covenant{Type: TypeTRANSFER, Items: [][]byte{t.NameHash[:], {byte(t.Address.Version)}, t.Address.Bytes()}}
}

// ParseTransfer decodes the TRANSFER covenant items.
func ParseTransfer(c Covenant) (Transfer, error) {
	if c.Type != TypeTRANSFER || len(c.Items) != 3 {
		return Transfer{}, fmt.Errorf("covenant: not a well-formed TRANSFER")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Transfer{}, err
	}
	if len(c.Items[1]) != 1 {
		return Transfer{}, fmt.Errorf("covenant: TRANSFER version item must be 1 byte")
	}
	version := types.AddressVersion(c.Items[1][0])
	switch len(c.Items[2]) {
	case types.AddressSize20:
		var raw [types.AddressSize20]byte
		copy(raw[:], c.Items[2])
		return Transfer{NameHash: h, Address: types.NewAddress20WithVersion(version, raw)}, nil
	case types.AddressSize32:
		var raw [types.AddressSize32]byte
		copy(raw[:], c.Items[2])
		return Transfer{NameHash: h, Address: types.NewAddress32WithVersion(version, raw)}, nil
	default:
		return Transfer{}, fmt.Errorf("covenant: TRANSFER address must be 20 or 32 bytes")
	}
}

// NewFinalize builds a FINALIZE covenant: nameHash, resource data (carried
// over from the last REGISTER/UPDATE).
func NewFinalize(r Register) Covenant {
	return Covenant{Type: TypeFINALIZE, Items: [][]byte{r.NameHash[:], r.Data}}
}

// ParseFinalize decodes the FINALIZE covenant items.
func ParseFinalize(c Covenant) (Register, error) {
	if c.Type != TypeFINALIZE || len(c.Items) != 2 {
		return Register{}, fmt.Errorf("covenant: not a well-formed FINALIZE")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Register{}, err
	}
	return Register{NameHash: h, Data: c.Items[1]}, nil
}

// NewRevoke builds a REVOKE covenant: nameHash.
func NewRevoke(nameHash types.NameHash) Covenant {
	return Covenant{Type: TypeREVOKE, Items: [][]byte{nameHash[:]}}
}

// ParseRevoke decodes the REVOKE covenant items.
func ParseRevoke(c Covenant) (types.NameHash, error) {
	if c.Type != TypeREVOKE || len(c.Items) != 1 {
		return types.NameHash{}, fmt.Errorf("covenant: not a well-formed REVOKE")
	}
	return hashItem(c.Items[0])
}

// NewClaim builds a CLAIM covenant: nameHash, raw name, airdrop proof blob.
type Claim struct {
	NameHash types.NameHash
	Name     string
	Proof    []byte
}

// NewClaimCovenant builds a CLAIM covenant.
func NewClaimCovenant(c Claim) Covenant {
	return Covenant{Type: TypeCLAIM, Items: [][]byte{c.NameHash[:], []byte(c.Name), c.Proof}}
}

// ParseClaim decodes the CLAIM covenant items.
func ParseClaim(c Covenant) (Claim, error) {
	if c.Type != TypeCLAIM || len(c.Items) != 3 {
		return Claim{}, fmt.Errorf("covenant: not a well-formed CLAIM")
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return Claim{}, err
	}
	return Claim{NameHash: h, Name: string(c.Items[1]), Proof: c.Items[2]}, nil
}

// NameHashOf extracts the name hash from any name-bearing covenant, or
// false if the covenant carries no name (NONE).
func NameHashOf(c Covenant) (types.NameHash, bool) {
	if len(c.Items) == 0 {
		return types.NameHash{}, false
	}
	h, err := hashItem(c.Items[0])
	if err != nil {
		return types.NameHash{}, false
	}
	return h, c.Type != TypeNONE
}
