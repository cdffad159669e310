package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/propsproject/props-protocol-sub000/crypto"
	nativecommon "github.com/propsproject/props-protocol-sub000/native/common"
)

func parseAddress(field, value string) (common.Address, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return common.Address{}, nativecommon.Wrap(nativecommon.ErrInvalidInput, "%s: %v", field, err)
	}
	return addr, nil
}

func parseOptionalAddress(field, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, value)
}

func parseAddresses(field string, values []string) ([]common.Address, error) {
	out := make([]common.Address, len(values))
	for i, value := range values {
		addr, err := parseAddress(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// parseAmount accepts a base-10 integer. Signs are passed through so that
// signed batches reach the engine unchanged.
func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nativecommon.Wrap(nativecommon.ErrInvalidInput, "%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, nativecommon.Wrap(nativecommon.ErrInvalidInput, "%s: invalid amount %q", field, value)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return parseAmount(field, value)
}

func parseAmounts(field string, values []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, value := range values {
		amount, err := parseAmount(fmt.Sprintf("%s[%d]", field, i), value)
		if err != nil {
			return nil, err
		}
		out[i] = amount
	}
	return out, nil
}
