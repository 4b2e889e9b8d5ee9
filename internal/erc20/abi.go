package erc20

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const approvalEventABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "spender", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "Approval",
    "type": "event"
  }
]`

// decimals is declared as uint256 so out-of-range values surface instead of being truncated.
const tokenABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "account", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const tokenABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "name", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	approvalABI      abi.ABI
	approvalABIOnce  sync.Once
	approvalABIErr   error
	tokenABIString   abi.ABI
	tokenABIStrOnce  sync.Once
	tokenABIStrErr   error
	tokenABIBytes32  abi.ABI
	tokenABIB32Once  sync.Once
	tokenABIBytes32E error
)

// ApprovalABI returns the parsed Approval event ABI.
func ApprovalABI() (abi.ABI, error) {
	approvalABIOnce.Do(func() {
		approvalABI, approvalABIErr = abi.JSON(strings.NewReader(approvalEventABIJSON))
	})
	return approvalABI, approvalABIErr
}

// ApprovalTopic returns keccak256("Approval(address,address,uint256)").
func ApprovalTopic() common.Hash {
	parsed, err := ApprovalABI()
	if err != nil {
		panic(err)
	}
	return parsed.Events["Approval"].ID
}

// TokenABI returns the string-typed ERC20 read ABI.
func TokenABI() (abi.ABI, error) {
	tokenABIStrOnce.Do(func() {
		tokenABIString, tokenABIStrErr = abi.JSON(strings.NewReader(tokenABIStringJSON))
	})
	return tokenABIString, tokenABIStrErr
}

// TokenBytes32ABI returns the ABI used by tokens that expose name/symbol as bytes32.
func TokenBytes32ABI() (abi.ABI, error) {
	tokenABIB32Once.Do(func() {
		tokenABIBytes32, tokenABIBytes32E = abi.JSON(strings.NewReader(tokenABIBytes32JSON))
	})
	return tokenABIBytes32, tokenABIBytes32E
}
