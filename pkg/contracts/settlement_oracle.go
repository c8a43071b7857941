package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// SettlementOracleABI is the ABI of the SettlementOracle contract
const SettlementOracleABI = `[
	{
		"inputs": [
			{
				"internalType": "bytes32",
				"name": "orderId",
				"type": "bytes32"
			}
		],
		"name": "getFillInfo",
		"outputs": [
			{
				"internalType": "address",
				"name": "filler",
				"type": "address"
			},
			{
				"internalType": "uint256",
				"name": "fillTimestamp",
				"type": "uint256"
			},
			{
				"components": [
					{
						"internalType": "address",
						"name": "recipient",
						"type": "address"
					},
					{
						"internalType": "address",
						"name": "token",
						"type": "address"
					},
					{
						"internalType": "uint256",
						"name": "amount",
						"type": "uint256"
					},
					{
						"internalType": "uint256",
						"name": "chainId",
						"type": "uint256"
					}
				],
				"internalType": "struct SettlementFillInfo.OutputToken[]",
				"name": "outputs",
				"type": "tuple[]"
			}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// SettlementOracleOutput is an auto generated low-level Go binding around an user-defined struct.
type SettlementOracleOutput struct {
	Recipient common.Address
	Token     common.Address
	Amount    *big.Int
	ChainId   *big.Int
}

// SettlementOracleFillInfo is the return value of getFillInfo.
type SettlementOracleFillInfo struct {
	Filler        common.Address
	FillTimestamp *big.Int
	Outputs       []SettlementOracleOutput
}

// SettlementOracle is an auto generated Go binding around an Ethereum contract.
type SettlementOracle struct {
	SettlementOracleCaller // Read-only binding to the contract
}

// SettlementOracleCaller is an auto generated read-only Go binding around an Ethereum contract.
type SettlementOracleCaller struct {
	contract *bind.BoundContract // Generic contract wrapper for the low level calls
}

// SettlementOracleCallerSession is an auto generated read-only Go binding around an Ethereum contract,
// with pre-set call options.
type SettlementOracleCallerSession struct {
	Contract *SettlementOracleCaller // Generic contract caller binding to set the session for
	CallOpts bind.CallOpts           // Call options to use throughout this session
}

// SettlementOracleCallerRaw is an auto generated low-level read-only Go binding around an Ethereum contract.
type SettlementOracleCallerRaw struct {
	Contract *SettlementOracleCaller // Generic read-only contract binding to access the raw methods on
}

// NewSettlementOracle creates a new instance of SettlementOracle, bound to a specific deployed contract.
func NewSettlementOracle(address common.Address, backend bind.ContractBackend) (*SettlementOracle, error) {
	contract, err := bindSettlementOracle(address, backend)
	if err != nil {
		return nil, err
	}
	return &SettlementOracle{SettlementOracleCaller: SettlementOracleCaller{contract: contract}}, nil
}

// NewSettlementOracleCaller creates a new read-only instance of SettlementOracle, bound to a specific deployed contract.
func NewSettlementOracleCaller(address common.Address, caller bind.ContractCaller) (*SettlementOracleCaller, error) {
	contract, err := bindSettlementOracle(address, caller)
	if err != nil {
		return nil, err
	}
	return &SettlementOracleCaller{contract: contract}, nil
}

// bindSettlementOracle binds a generic wrapper to an already deployed contract.
func bindSettlementOracle(address common.Address, caller bind.ContractCaller) (*bind.BoundContract, error) {
	parsed, err := abi.JSON(strings.NewReader(SettlementOracleABI))
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, parsed, caller, nil, nil), nil
}

// Call invokes the (constant) contract method with params as input values and
// sets the output to result. The result type might be a single field for simple
// returns, a slice of interfaces for anonymous returns and a struct for named
// returns.
func (_SettlementOracle *SettlementOracleCallerRaw) Call(opts *bind.CallOpts, result *[]interface{}, method string, params ...interface{}) error {
	return _SettlementOracle.Contract.contract.Call(opts, result, method, params...)
}

// GetFillInfo is a free data retrieval call binding the contract method getFillInfo.
//
// Solidity: function getFillInfo(bytes32 orderId) view returns(address filler, uint256 fillTimestamp, (address,address,uint256,uint256)[] outputs)
func (_SettlementOracle *SettlementOracleCaller) GetFillInfo(opts *bind.CallOpts, orderId [32]byte) (SettlementOracleFillInfo, error) {
	var out []interface{}
	err := _SettlementOracle.contract.Call(opts, &out, "getFillInfo", orderId)

	outstruct := new(SettlementOracleFillInfo)
	if err != nil {
		return *outstruct, err
	}

	outstruct.Filler = *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	outstruct.FillTimestamp = *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	outstruct.Outputs = *abi.ConvertType(out[2], new([]SettlementOracleOutput)).(*[]SettlementOracleOutput)

	return *outstruct, err
}

// GetFillInfo is a free data retrieval call binding the contract method getFillInfo.
//
// Solidity: function getFillInfo(bytes32 orderId) view returns(address filler, uint256 fillTimestamp, (address,address,uint256,uint256)[] outputs)
func (_SettlementOracle *SettlementOracleCallerSession) GetFillInfo(orderId [32]byte) (SettlementOracleFillInfo, error) {
	return _SettlementOracle.Contract.GetFillInfo(&_SettlementOracle.CallOpts, orderId)
}
