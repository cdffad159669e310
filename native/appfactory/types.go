package appfactory

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the template every deployment is cloned from.
type Config struct {
	// Address is the factory account. It is the only caller the orchestrator
	// accepts app registrations from.
	Address        common.Address
	Orchestrator   common.Address
	PrincipalToken common.Address
	// DailyEmission applies when a deployment does not carry its own.
	DailyEmission *big.Int
}

// DeployRequest describes a new app.
type DeployRequest struct {
	Name          string
	Symbol        string
	Supply        *big.Int
	Owner         common.Address
	DailyEmission *big.Int
}

// Deployment records what a deploy produced.
type Deployment struct {
	App      common.Address
	Pool     common.Address
	Owner    common.Address
	Sequence uint64
}
