package merkle

import (
	"errors"
	"fmt"
	"math/big"

	"allocation-generator/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidLeafID      = errors.New("invalid allocation id")
	ErrMissingLeafAddress = errors.New("missing allocation address")
	ErrInvalidLeafAddress = errors.New("invalid allocation address")
	ErrInvalidLeafAmount  = errors.New("invalid allocation amount")
)

// maxUint256 2^256 - 1
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// leafArguments ABI encoding of a leaf: (uint256 id, address account, uint256 amount)
var leafArguments = func() abi.Arguments {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "id", Type: uint256Type},
		{Name: "account", Type: addressType},
		{Name: "amount", Type: uint256Type},
	}
}()

// Leaf the committed (id, address, amount) triple of one allocation
type Leaf struct {
	ID      *big.Int
	Address common.Address
	Amount  *big.Int
}

// EncodeLeaf converts an allocation into a tree leaf. The proof is ignored.
func EncodeLeaf(a models.Allocation) (Leaf, error) {
	if a.ID < 0 {
		return Leaf{}, fmt.Errorf("%w: %d", ErrInvalidLeafID, a.ID)
	}

	if a.Address == "" {
		return Leaf{}, ErrMissingLeafAddress
	}
	if !common.IsHexAddress(a.Address) {
		return Leaf{}, fmt.Errorf("%w: %q", ErrInvalidLeafAddress, a.Address)
	}

	amount, ok := new(big.Int).SetString(a.Amount, 10)
	if !ok || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return Leaf{}, fmt.Errorf("%w: %q", ErrInvalidLeafAmount, a.Amount)
	}

	return Leaf{
		ID:      big.NewInt(a.ID),
		Address: common.HexToAddress(a.Address),
		Amount:  amount,
	}, nil
}

// Hash keccak256(keccak256(abi.encode(id, address, amount)))
func (l Leaf) Hash() common.Hash {
	encoded, err := leafArguments.Pack(l.ID, l.Address, l.Amount)
	if err != nil {
		// Only reachable for leaves not built through EncodeLeaf.
		panic(fmt.Sprintf("merkle: cannot encode leaf: %v", err))
	}
	return crypto.Keccak256Hash(crypto.Keccak256(encoded))
}

// String (id, address, amount)
func (l Leaf) String() string {
	return fmt.Sprintf("(%s, %s, %s)", l.ID, l.Address.Hex(), l.Amount)
}
