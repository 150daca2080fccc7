package transport

import (
	"encoding/base64"
	"fmt"

	"github.com/thomasedgemon/mpigo/internal/wire"
)

// argsEnvelope is the shape encoded into MPI_RUN_ARGS: a fixed field
// name keeps the envelope self-describing even though the args
// themselves are arbitrary msgpack-able values.
type argsEnvelope struct {
	Args []any `msgpack:"args"`
}

// EncodeArgs serializes args with the wire codec and base64-encodes
// the result so it can travel as a single command-line argument or
// environment variable value.
func EncodeArgs(args []any) (string, error) {
	data, err := wire.Serialize(argsEnvelope{Args: args})
	if err != nil {
		return "", fmt.Errorf("transport: encode args: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeArgs reverses EncodeArgs.
func DecodeArgs(s string) ([]any, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("transport: decode args: %w", err)
	}
	var env argsEnvelope
	if err := wire.Deserialize(data, &env); err != nil {
		return nil, fmt.Errorf("transport: decode args: %w", err)
	}
	return env.Args, nil
}
