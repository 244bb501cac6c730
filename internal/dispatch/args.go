package dispatch

import (
	"fmt"
	"math/big"

	"github.com/streamdex/engine/pkg/address"
	"github.com/streamdex/engine/pkg/decimal"
)

// ErrMissingArgument names a required action argument that is absent or of
// the wrong shape. The argument helpers in this file return their own
// unwrapped errors and do not wrap this sentinel.
var ErrMissingArgument = fmt.Errorf("%w: missing or malformed argument", ErrUnknownMethod)

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func argAddress(args map[string]interface{}, key string) (address.Address, error) {
	s, err := argString(args, key)
	if err != nil {
		return address.Address{}, err
	}
	return address.Parse(s)
}

func argBigInt(args map[string]interface{}, key string) (*big.Int, error) {
	s, err := argString(args, key)
	if err != nil {
		return nil, err
	}
	return decimal.Parse(s)
}

func argInt(args map[string]interface{}, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case string:
		parsed, err := decimal.Parse(n)
		if err != nil {
			return 0, fmt.Errorf("argument %q is not an integer: %w", key, err)
		}
		return parsed.Int64(), nil
	default:
		return 0, fmt.Errorf("argument %q has unsupported type %T", key, v)
	}
}

func argAddressPath(args map[string]interface{}, key string) ([2]address.Address, error) {
	var path [2]address.Address
	v, ok := args[key]
	if !ok {
		return path, fmt.Errorf("missing argument %q", key)
	}
	list, ok := v.([]interface{})
	if !ok || len(list) != 2 {
		return path, fmt.Errorf("argument %q must be a 2-element path", key)
	}
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return path, fmt.Errorf("argument %q element %d must be a string", key, i)
		}
		addr, err := address.Parse(s)
		if err != nil {
			return path, err
		}
		path[i] = addr
	}
	return path, nil
}

// parseTransferArgs extracts the common shape shared by stream and
// split_stream: token, receiver, amount, duration, start.
func parseTransferArgs(args map[string]interface{}) (tok, to address.Address, amount *big.Int, duration, start int64, err error) {
	if tok, err = argAddress(args, "token"); err != nil {
		return
	}
	if to, err = argAddress(args, "receiver"); err != nil {
		return
	}
	if amount, err = argBigInt(args, "amount"); err != nil {
		return
	}
	if duration, err = argInt(args, "duration"); err != nil {
		return
	}
	if start, err = argInt(args, "start"); err != nil {
		return
	}
	return
}
