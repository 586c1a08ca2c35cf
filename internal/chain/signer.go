package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	bip39 "github.com/cosmos/go-bip39"
)

// cosmosCoinType is the SLIP-0044 coin type used for mnemonic derivation.
const cosmosCoinType = 118

// Signer owns the signing credential and assembles SIGN_MODE_DIRECT
// transactions. Loaded once per process; the private key never leaves it.
type Signer struct {
	privKey cryptotypes.PrivKey
	address string
	chainID string
}

// SignerConfig holds credential and chain identity settings.
type SignerConfig struct {
	Mnemonic     string // bip39 mnemonic, derived at 44'/118'/0'/0/0
	PrivKeyHex   string // raw secp256k1 key, hex encoded
	Bech32Prefix string
	ChainID      string
}

// NewSigner loads the signing credential. Exactly one of Mnemonic or
// PrivKeyHex must be set.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	var keyBytes []byte

	switch {
	case cfg.Mnemonic != "" && cfg.PrivKeyHex != "":
		return nil, fmt.Errorf("set only one of mnemonic or private key")
	case cfg.Mnemonic != "":
		if !bip39.IsMnemonicValid(cfg.Mnemonic) {
			return nil, fmt.Errorf("invalid mnemonic")
		}
		derived, err := hd.Secp256k1.Derive()(cfg.Mnemonic, "", hd.CreateHDPath(cosmosCoinType, 0, 0).String())
		if err != nil {
			return nil, fmt.Errorf("failed to derive key from mnemonic: %w", err)
		}
		keyBytes = derived
	case cfg.PrivKeyHex != "":
		decoded, err := hex.DecodeString(strings.TrimPrefix(cfg.PrivKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to decode private key hex: %w", err)
		}
		keyBytes = decoded
	default:
		return nil, fmt.Errorf("a signing credential is required")
	}

	privKey := &secp256k1.PrivKey{Key: keyBytes}

	addr, err := bech32.ConvertAndEncode(cfg.Bech32Prefix, privKey.PubKey().Address())
	if err != nil {
		return nil, fmt.Errorf("failed to encode address: %w", err)
	}

	return &Signer{privKey: privKey, address: addr, chainID: cfg.ChainID}, nil
}

// Address returns the signer's bech32 account address.
func (s *Signer) Address() string {
	return s.address
}

// ExecuteParams describes one contract execute transaction.
type ExecuteParams struct {
	Contract      string
	ExecMsg       any // JSON-serializable execute message
	Memo          string
	AccountNumber uint64
	Sequence      uint64
	FeeDenom      string
	FeeAmount     int64
	GasLimit      uint64
}

// BuildExecuteTx assembles and signs a MsgExecuteContract transaction,
// returning the raw bytes ready for broadcast.
func (s *Signer) BuildExecuteTx(p ExecuteParams) ([]byte, error) {
	execBytes, err := json.Marshal(p.ExecMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute msg: %w", err)
	}

	msg := &wasmtypes.MsgExecuteContract{
		Sender:   s.address,
		Contract: p.Contract,
		Msg:      wasmtypes.RawContractMessage(execBytes),
	}
	msgAny, err := codectypes.NewAnyWithValue(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute msg: %w", err)
	}

	body := &txtypes.TxBody{
		Messages: []*codectypes.Any{msgAny},
		Memo:     p.Memo,
	}
	bodyBytes, err := body.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tx body: %w", err)
	}

	pubKeyAny, err := codectypes.NewAnyWithValue(s.privKey.PubKey())
	if err != nil {
		return nil, fmt.Errorf("failed to pack public key: %w", err)
	}

	authInfo := &txtypes.AuthInfo{
		SignerInfos: []*txtypes.SignerInfo{{
			PublicKey: pubKeyAny,
			ModeInfo: &txtypes.ModeInfo{
				Sum: &txtypes.ModeInfo_Single_{
					Single: &txtypes.ModeInfo_Single{Mode: signing.SignMode_SIGN_MODE_DIRECT},
				},
			},
			Sequence: p.Sequence,
		}},
		Fee: &txtypes.Fee{
			Amount:   sdk.NewCoins(sdk.NewInt64Coin(p.FeeDenom, p.FeeAmount)),
			GasLimit: p.GasLimit,
		},
	}
	authInfoBytes, err := authInfo.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth info: %w", err)
	}

	signDoc := &txtypes.SignDoc{
		BodyBytes:     bodyBytes,
		AuthInfoBytes: authInfoBytes,
		ChainId:       s.chainID,
		AccountNumber: p.AccountNumber,
	}
	signBytes, err := signDoc.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign doc: %w", err)
	}

	sig, err := s.privKey.Sign(signBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	raw := &txtypes.TxRaw{
		BodyBytes:     bodyBytes,
		AuthInfoBytes: authInfoBytes,
		Signatures:    [][]byte{sig},
	}
	txBytes, err := raw.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw tx: %w", err)
	}

	return txBytes, nil
}
