package dispatch

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/streamdex/engine/pkg/address"
)

// transferSelector is the 4-byte selector for ERC-20's
// transfer(address,uint256), computed as keccak256("transfer(address,uint256)")[:4].
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// ErrDecodeError is returned when a deposit payload fails to decode.
var ErrDecodeError = errors.New("dispatch: failed to decode deposit payload")

// depositPayloadLen is the exact length of the packed deposit payload:
// bool(1) || address(20) || address(20) || uint256(32).
const depositPayloadLen = 1 + 20 + 20 + 32

// Deposit is the decoded contents of a deposit payload.
type Deposit struct {
	Success bool
	Token   address.Address
	From    address.Address
	Amount  *big.Int
}

// DecodeDeposit decodes a packed (not standard ABI-encoded) deposit
// payload: bool || address(20) || address(20) || uint256(32), exactly 73
// bytes, as produced by the ERC20 portal contract.
func DecodeDeposit(payload []byte) (*Deposit, error) {
	if len(payload) != depositPayloadLen {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrDecodeError, depositPayloadLen, len(payload))
	}

	d := &Deposit{
		Success: payload[0] != 0,
		Amount:  new(big.Int).SetBytes(payload[41:73]),
	}

	var err error
	if d.Token, err = address.Parse(toHexAddress(payload[1:21])); err != nil {
		return nil, fmt.Errorf("%w: token address: %v", ErrDecodeError, err)
	}
	if d.From, err = address.Parse(toHexAddress(payload[21:41])); err != nil {
		return nil, fmt.Errorf("%w: depositor address: %v", ErrDecodeError, err)
	}
	return d, nil
}

func toHexAddress(b []byte) string {
	return fmt.Sprintf("0x%x", b)
}

// Voucher is the withdraw action's payload: a standard ERC-20 transfer call
// targeted at the token's own address, to be posted to the rollup host.
type Voucher struct {
	Destination address.Address
	Payload     []byte
}

// EncodeTransferVoucher builds the voucher payload for withdraw: selector
// 0xa9059cbb followed by the ABI encoding of (to, amount).
func EncodeTransferVoucher(token, to address.Address, amount *big.Int) (*Voucher, error) {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build address abi type: %w", err)
	}
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build uint256 abi type: %w", err)
	}
	args := abi.Arguments{{Type: addressType}, {Type: uint256Type}}

	packed, err := args.Pack(to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer voucher: %w", err)
	}

	payload := make([]byte, 0, len(transferSelector)+len(packed))
	payload = append(payload, transferSelector...)
	payload = append(payload, packed...)

	return &Voucher{Destination: token, Payload: payload}, nil
}
