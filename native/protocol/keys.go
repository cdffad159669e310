package protocol

import "github.com/ethereum/go-ethereum/common"

var (
	configKey           = []byte("protocol/config")
	appPrefix           = []byte("protocol/app/")
	stakePrefix         = []byte("protocol/stake/")
	appTotalPrefix      = []byte("protocol/app_total/")
	accountTotalPrefix  = []byte("protocol/account_total/")
	accountAppsPrefix   = []byte("protocol/account_apps/")
	registeredAppsIndex = []byte("protocol/apps")
)

func keyFor(prefix []byte, parts ...common.Address) []byte {
	buf := append([]byte(nil), prefix...)
	for _, part := range parts {
		buf = append(buf, part.Bytes()...)
	}
	return buf
}

func appKey(app common.Address) []byte { return keyFor(appPrefix, app) }

func stakeKey(account, app common.Address) []byte { return keyFor(stakePrefix, account, app) }

func appTotalKey(app common.Address) []byte { return keyFor(appTotalPrefix, app) }

func accountTotalKey(account common.Address) []byte { return keyFor(accountTotalPrefix, account) }

func accountAppsKey(account common.Address) []byte { return keyFor(accountAppsPrefix, account) }
