package gateway

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABI = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const tokenMessengerABI = `[
 {"type":"function","name":"depositForBurn","stateMutability":"nonpayable","inputs":[
  {"name":"amount","type":"uint256"},
  {"name":"destinationDomain","type":"uint32"},
  {"name":"mintRecipient","type":"bytes32"},
  {"name":"burnToken","type":"address"},
  {"name":"destinationCaller","type":"bytes32"},
  {"name":"maxFee","type":"uint256"},
  {"name":"minFinalityThreshold","type":"uint32"}],"outputs":[]}
]`

const messageTransmitterABI = `[
 {"type":"function","name":"receiveMessage","stateMutability":"nonpayable","inputs":[{"name":"message","type":"bytes"},{"name":"attestation","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]}
]`

const simpleAccountABI = `[
 {"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"executeBatch","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address[]"},{"name":"func","type":"bytes[]"}],"outputs":[]}
]`

const accountFactoryABI = `[
 {"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"ret","type":"address"}]}
]`

const entryPointABI = `[
 {"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
]`

var (
	erc20             = mustABI(erc20ABI)
	tokenMessenger    = mustABI(tokenMessengerABI)
	msgTransmitter    = mustABI(messageTransmitterABI)
	simpleAccount     = mustABI(simpleAccountABI)
	accountFactory    = mustABI(accountFactoryABI)
	entryPointMethods = mustABI(entryPointABI)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
