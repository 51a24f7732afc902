package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lightninglabs/subrelay/encryption"
	"github.com/lightninglabs/subrelay/keys"
	"github.com/lightningnetwork/lnd/lncfg"
	"github.com/urfave/cli"
)

var genKeysCommand = cli.Command{
	Name:  "genkeys",
	Usage: "generate the relay's RSA key pair",
	Description: "Writes a new key pair into the key directory. An " +
		"existing pair is only replaced with --force.",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "keydir",
			Usage: "target directory, defaults to <relaydir>/keys",
		},
		cli.IntFlag{
			Name:  "bits",
			Value: encryption.DefaultKeyBits,
			Usage: "RSA modulus size",
		},
		cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing key pair",
		},
	},
	Action: genKeys,
}

func genKeys(ctx *cli.Context) error {
	keyDir := ctx.String("keydir")
	if keyDir == "" {
		keyDir = filepath.Join(ctx.GlobalString("relaydir"), "keys")
	}
	keyDir = lncfg.CleanAndExpandPath(keyDir)

	bits := ctx.Int("bits")
	if bits < 1024 {
		return fmt.Errorf("key size of %d bits is too small", bits)
	}

	// An existing pair means the custodian does not need to generate.
	custodian := keys.NewFileCustodian(keyDir, false)
	existing, err := custodian.GetEncryptionKeys(context.Background())
	if err == nil && !ctx.Bool("force") {
		return fmt.Errorf("key pair already exists: %v",
			existing.PrivKeyFile)
	}

	files, err := keys.Generate(keyDir, bits)
	if err != nil {
		return err
	}

	_, pub, err := keys.LoadPair(files)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"private_key":    files.PrivKeyFile,
		"public_key":     files.PubKeyFile,
		"ciphertext_len": pub.CiphertextLen(),
	})
}
