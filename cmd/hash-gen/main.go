package main

import (
	"fmt"
	"log"
	"os"

	"stablepay.backend/pkg/crypto"
)

var (
	printfFn       = fmt.Printf
	generateKeyFn  = crypto.GenerateOperatorKey
	generateHashFn = crypto.HashOperatorKey
	fatalfFn       = log.Fatalf
)

// resolveKey returns the key given on the command line, or a fresh one.
func resolveKey(args []string) (key string, generated bool, err error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], false, nil
	}
	key, err = generateKeyFn()
	return key, true, err
}

func main() {
	key, generated, err := resolveKey(os.Args[1:])
	if err != nil {
		fatalfFn("Failed to generate operator key: %v", err)
		return
	}
	if generated {
		printfFn("Operator key (send as X-Operator-Key): %s\n", key)
	}

	hash, err := generateHashFn(key)
	if err != nil {
		fatalfFn("Failed to hash operator key: %v", err)
		return
	}

	printfFn("OPERATOR_KEY_HASH=%s\n", hash)
}
