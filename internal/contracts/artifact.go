// Package contracts loads compiled contract artifacts, deploys them through a
// node.Provider and wraps deployed instances for ABI-encoded calls. It also
// knows how to stand up the pool under test.
package contracts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sugawarayuuta/sonnet"

	"github.com/anthias-labs/arena/internal/node"
)

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// rawArtifact covers both the Foundry layout (bytecode.object) and the
// Hardhat layout (bytecode as a hex string).
type rawArtifact struct {
	ContractName string `json:"contractName"`
	ABI          any    `json:"abi"`
	Bytecode     any    `json:"bytecode"`
}

// LoadArtifact reads a JSON artifact from path. The contract name defaults
// to the file name without extension.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contracts: read artifact: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseArtifact(name, data)
}

// ParseArtifact decodes a JSON artifact.
func ParseArtifact(name string, data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := sonnet.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("contracts: decode artifact %s: %w", name, err)
	}
	if raw.ContractName != "" {
		name = raw.ContractName
	}
	if raw.ABI == nil {
		return nil, fmt.Errorf("contracts: artifact %s: missing abi", name)
	}

	abiJSON, err := sonnet.Marshal(raw.ABI)
	if err != nil {
		return nil, fmt.Errorf("contracts: artifact %s: encode abi: %w", name, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("contracts: artifact %s: parse abi: %w", name, err)
	}

	var code string
	switch b := raw.Bytecode.(type) {
	case string:
		code = b
	case map[string]any:
		code, _ = b["object"].(string)
	}
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("contracts: artifact %s: missing bytecode", name)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("contracts: artifact %s: bytecode: %w", name, err)
	}

	return &Artifact{Name: name, ABI: parsed, Bytecode: bytecode}, nil
}

// DeployCode returns the creation bytecode with ABI-encoded constructor
// arguments appended.
func (a *Artifact) DeployCode(args ...any) ([]byte, error) {
	packed, err := a.ABI.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: %s constructor args: %w", a.Name, err)
	}
	code := make([]byte, 0, len(a.Bytecode)+len(packed))
	code = append(code, a.Bytecode...)
	return append(code, packed...), nil
}

// ConstructorDefaults fills every constructor input with a neutral value:
// the deployer for addresses, zero otherwise.
func (a *Artifact) ConstructorDefaults(deployer common.Address) []any {
	inputs := a.ABI.Constructor.Inputs
	args := make([]any, 0, len(inputs))
	for _, in := range inputs {
		args = append(args, zeroArg(in.Type, deployer))
	}
	return args
}

func zeroArg(t abi.Type, deployer common.Address) any {
	switch t.T {
	case abi.AddressTy:
		return deployer
	case abi.UintTy, abi.IntTy:
		if t.Size > 64 {
			return new(big.Int)
		}
	case abi.StringTy:
		return ""
	case abi.BytesTy:
		return []byte{}
	}
	return reflect.Zero(t.GetType()).Interface()
}

// Bound is a deployed contract reachable through a provider.
type Bound struct {
	Address  common.Address
	Artifact *Artifact
	provider *node.Provider
}

// Bind wraps an existing deployment.
func Bind(address common.Address, a *Artifact, p *node.Provider) *Bound {
	return &Bound{Address: address, Artifact: a, provider: p}
}

// Deploy sends the artifact's creation code with args and binds the result.
func Deploy(ctx context.Context, p *node.Provider, a *Artifact, args ...any) (*Bound, error) {
	code, err := a.DeployCode(args...)
	if err != nil {
		return nil, err
	}
	addr, _, err := p.Deploy(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("contracts: deploy %s: %w", a.Name, err)
	}
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("contracts: deploy %s: %w", a.Name, errors.New("no contract address in receipt"))
	}
	return Bind(addr, a, p), nil
}

// Call runs a view method and returns its decoded outputs.
func (b *Bound) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := b.Artifact.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contracts: %s.%s: pack: %w", b.Artifact.Name, method, err)
	}
	out, err := b.provider.Call(ctx, b.Address, data)
	if err != nil {
		return nil, fmt.Errorf("contracts: %s.%s: %w", b.Artifact.Name, method, err)
	}
	values, err := b.Artifact.ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("contracts: %s.%s: unpack: %w", b.Artifact.Name, method, err)
	}
	return values, nil
}

// Transact sends a state-changing call and waits for it to be mined.
func (b *Bound) Transact(ctx context.Context, method string, args ...any) error {
	data, err := b.Artifact.ABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("contracts: %s.%s: pack: %w", b.Artifact.Name, method, err)
	}
	if _, err := b.provider.Transact(ctx, b.Address, data, nil); err != nil {
		return fmt.Errorf("contracts: %s.%s: %w", b.Artifact.Name, method, err)
	}
	return nil
}
