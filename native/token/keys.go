package token

import "github.com/ethereum/go-ethereum/common"

var (
	metadataPrefix  = []byte("token/meta/")
	balancePrefix   = []byte("token/balance/")
	allowancePrefix = []byte("token/allowance/")
	noncePrefix     = []byte("token/nonce/")
)

func join(prefix []byte, parts ...common.Address) []byte {
	buf := make([]byte, 0, len(prefix)+len(parts)*common.AddressLength)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part.Bytes()...)
	}
	return buf
}

func metadataKey(token common.Address) []byte { return join(metadataPrefix, token) }

func balanceKey(token, account common.Address) []byte {
	return join(balancePrefix, token, account)
}

func allowanceKey(token, owner, spender common.Address) []byte {
	return join(allowancePrefix, token, owner, spender)
}

func nonceKey(token, owner common.Address) []byte { return join(noncePrefix, token, owner) }
