package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/mosaicnetworks/ledgerclient/src/crypto/keys"
	"github.com/spf13/cobra"
)

var (
	privKeyFile string
	pubKeyFile  string
)

// NewKeygenCmd produces a KeygenCmd which create a key pair
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", "", "File where the private key will be written (default [datadir]/priv_key)")
	cmd.Flags().StringVar(&pubKeyFile, "pub", "", "File where the public key will be written (default [datadir]/key.pub)")
}

func keygen(cmd *cobra.Command, args []string) error {
	if privKeyFile == "" {
		privKeyFile = _config.Keyfile()
	}
	if pubKeyFile == "" {
		pubKeyFile = filepath.Join(_config.DataDir, "key.pub")
	}

	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("A key already lives under: %s", filepath.Dir(privKeyFile))
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("Error generating ECDSA key")
	}

	if err := os.MkdirAll(filepath.Dir(privKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	if err := keys.NewKeyfile(privKeyFile).WriteKey(key); err != nil {
		return fmt.Errorf("Writing private key: %s", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Your private key has been saved to: %s\n", privKeyFile)

	if err := os.MkdirAll(filepath.Dir(pubKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	pub := keys.PublicKeyHex(&key.PublicKey)

	if err := ioutil.WriteFile(pubKeyFile, []byte(pub), 0600); err != nil {
		return fmt.Errorf("Writing public key: %s", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Your public key has been saved to: %s\n", pubKeyFile)

	return nil
}
