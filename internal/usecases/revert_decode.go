package usecases

import (
	"bytes"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const oracleUnavailableReason = "no valid median"

// Error(string) selector
var revertErrorSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

var revertHexPattern = regexp.MustCompile(`0x[0-9a-fA-F]{8,}`)

// isOracleUnavailable reports whether err carries the broker's
// "no valid median" revert, either decoded or in plain text.
func isOracleUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if reason, ok := decodeRevertReason(err); ok && strings.Contains(strings.ToLower(reason), oracleUnavailableReason) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), oracleUnavailableReason)
}

// decodeRevertReason attempts to parse an Error(string) reason from RPC errors.
// It supports rpc.DataError payloads and fallback extraction from error strings.
func decodeRevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	if data, ok := extractRevertHexFromDataError(err); ok {
		if reason, ok := unpackRevertReason(data); ok {
			return reason, true
		}
	}

	if data, ok := extractRevertHexFromErrorString(err.Error()); ok {
		return unpackRevertReason(data)
	}

	return "", false
}

func unpackRevertReason(data []byte) (string, bool) {
	if len(data) < 4 || !bytes.Equal(data[:4], revertErrorSelector) {
		return "", false
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}

func extractRevertHexFromDataError(err error) ([]byte, bool) {
	type rpcDataError interface {
		ErrorData() interface{}
	}
	var dataErr rpcDataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	return parseRevertBytesFromAny(dataErr.ErrorData())
}

func parseRevertBytesFromAny(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		return parseHexBytes(v)
	case []byte:
		if len(v) == 0 {
			return nil, false
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out, true
	case map[string]interface{}:
		if raw, ok := v["data"]; ok {
			return parseRevertBytesFromAny(raw)
		}
	}
	return nil, false
}

func extractRevertHexFromErrorString(message string) ([]byte, bool) {
	for _, candidate := range revertHexPattern.FindAllString(message, -1) {
		if data, ok := parseHexBytes(candidate); ok {
			return data, true
		}
	}
	return nil, false
}

func parseHexBytes(raw string) ([]byte, bool) {
	value := strings.TrimSpace(strings.TrimPrefix(raw, "0x"))
	if len(value) < 8 || len(value)%2 != 0 {
		return nil, false
	}
	data, err := hex.DecodeString(value)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
