package governance

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

var ErrTruncatedPayload = errors.New("governance: truncated payload")

const word = 32

func putWord(buf []byte, v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return append(buf, v.FillBytes(make([]byte, word))...)
}

func putWordUint(buf []byte, v uint64) []byte {
	return putWord(buf, new(big.Int).SetUint64(v))
}

func padTo32(b []byte) []byte {
	rem := len(b) % word
	if rem == 0 {
		return b
	}
	return append(b, make([]byte, word-rem)...)
}

func takeWord(data []byte, off int) (*big.Int, int, error) {
	if off+word > len(data) {
		return nil, off, ErrTruncatedPayload
	}
	return new(big.Int).SetBytes(data[off : off+word]), off + word, nil
}

// EncodeCommand serialises a CommandPayload as ABI-style, 32-byte aligned
// big-endian fields: command || target || native_value || eta ||
// len(call_data) || call_data (zero-padded to a 32-byte multiple).
func EncodeCommand(cmd CommandPayload) []byte {
	buf := make([]byte, 0, 5*word+len(cmd.CallData))
	buf = putWordUint(buf, uint64(cmd.Command))
	buf = append(buf, cmd.Target[:]...)
	buf = putWord(buf, cmd.NativeValue)
	buf = putWord(buf, cmd.ETA)
	buf = putWordUint(buf, uint64(len(cmd.CallData)))
	buf = append(buf, padTo32(append([]byte(nil), cmd.CallData...))...)
	return buf
}

// DecodeCommand is the exact inverse of EncodeCommand.
func DecodeCommand(data []byte) (CommandPayload, error) {
	var cmd CommandPayload
	off := 0

	cmdWord, off, err := takeWord(data, off)
	if err != nil {
		return cmd, err
	}
	if !cmdWord.IsUint64() || cmdWord.Uint64() > uint64(CommandCancelOperatorApproval) {
		return cmd, errors.New("governance: unknown command discriminant")
	}
	cmd.Command = CommandType(cmdWord.Uint64())

	if off+word > len(data) {
		return cmd, ErrTruncatedPayload
	}
	copy(cmd.Target[:], data[off:off+word])
	off += word

	cmd.NativeValue, off, err = takeWord(data, off)
	if err != nil {
		return cmd, err
	}
	cmd.ETA, off, err = takeWord(data, off)
	if err != nil {
		return cmd, err
	}

	lenWord, off, err := takeWord(data, off)
	if err != nil {
		return cmd, err
	}
	if !lenWord.IsUint64() {
		return cmd, errors.New("governance: call_data length overflow")
	}
	n := int(lenWord.Uint64())
	if off+n > len(data) {
		return cmd, ErrTruncatedPayload
	}
	cmd.CallData = append([]byte(nil), data[off:off+n]...)

	return cmd, nil
}

// EncodeCallData serialises the accounts list, optional native-value
// receiver, and instruction bytes carried inside CommandPayload.CallData.
func EncodeCallData(cd CallData) []byte {
	buf := make([]byte, 0, word+len(cd.SolanaAccounts)*(word+2*word)+word+word+len(cd.InstructionBytes))
	buf = putWordUint(buf, uint64(len(cd.SolanaAccounts)))
	for _, a := range cd.SolanaAccounts {
		buf = append(buf, a.Pubkey[:]...)
		buf = putWordUint(buf, boolWord(a.IsSigner))
		buf = putWordUint(buf, boolWord(a.IsWritable))
	}

	if cd.NativeValueReceiver != nil {
		buf = putWordUint(buf, 1)
		buf = append(buf, cd.NativeValueReceiver[:]...)
	} else {
		buf = putWordUint(buf, 0)
		buf = append(buf, make([]byte, word)...)
	}

	buf = putWordUint(buf, uint64(len(cd.InstructionBytes)))
	buf = append(buf, padTo32(append([]byte(nil), cd.InstructionBytes...))...)
	return buf
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// DecodeCallData is the exact inverse of EncodeCallData.
func DecodeCallData(data []byte) (CallData, error) {
	var cd CallData
	off := 0

	countWord, off, err := takeWord(data, off)
	if err != nil {
		return cd, err
	}
	if !countWord.IsUint64() {
		return cd, errors.New("governance: account count overflow")
	}
	count := int(countWord.Uint64())

	cd.SolanaAccounts = make([]AccountMeta, count)
	for i := 0; i < count; i++ {
		if off+word > len(data) {
			return cd, ErrTruncatedPayload
		}
		var a AccountMeta
		copy(a.Pubkey[:], data[off:off+word])
		off += word

		var signerWord, writableWord *big.Int
		signerWord, off, err = takeWord(data, off)
		if err != nil {
			return cd, err
		}
		writableWord, off, err = takeWord(data, off)
		if err != nil {
			return cd, err
		}
		a.IsSigner = signerWord.Sign() != 0
		a.IsWritable = writableWord.Sign() != 0
		cd.SolanaAccounts[i] = a
	}

	hasReceiver, off, err := takeWord(data, off)
	if err != nil {
		return cd, err
	}
	if off+word > len(data) {
		return cd, ErrTruncatedPayload
	}
	if hasReceiver.Sign() != 0 {
		var receiver [32]byte
		copy(receiver[:], data[off:off+word])
		cd.NativeValueReceiver = &receiver
	}
	off += word

	lenWord, off, err := takeWord(data, off)
	if err != nil {
		return cd, err
	}
	if !lenWord.IsUint64() {
		return cd, errors.New("governance: instruction length overflow")
	}
	n := int(lenWord.Uint64())
	if off+n > len(data) {
		return cd, ErrTruncatedPayload
	}
	cd.InstructionBytes = append([]byte(nil), data[off:off+n]...)

	return cd, nil
}

// ProposalHash = keccak(target || call_data_hash || native_value_le), per
// the specification's byte-exact hashing rules.
func ProposalHash(target [32]byte, callData []byte, nativeValue *big.Int) [32]byte {
	callDataHash := crypto.Keccak256(callData)

	if nativeValue == nil {
		nativeValue = new(big.Int)
	}
	var nativeLE [32]byte
	be := nativeValue.FillBytes(make([]byte, 32))
	for i := 0; i < 32; i++ {
		nativeLE[i] = be[31-i]
	}

	buf := make([]byte, 0, 96)
	buf = append(buf, target[:]...)
	buf = append(buf, callDataHash...)
	buf = append(buf, nativeLE[:]...)
	return crypto.Keccak256Hash(buf)
}
