// ssfkeys converts an RSA public key into the JWKS document published
// at /jwks.json. It is a one-shot offline utility; the relay never
// writes key material at runtime.
package main

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

var (
	publicKeyPath string
	outputPath    string
	keyID         string
)

var rootCmd = &cobra.Command{
	Use:   "ssfkeys",
	Short: "SSF signing key utilities",
	Long: `ssfkeys manages the published key set for the SSF relay.

Generate an RSA keypair first, for example:
  openssl genrsa -out private.pem 2048
  openssl rsa -in private.pem -pubout -out public.pem

Keep private.pem out of version control and out of the JWKS.`,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate jwks.json from an RSA public key",
	RunE:  runGenerate,
}

type jwk struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	pemBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return fmt.Errorf("parse %s as RSA public key: %w", publicKeyPath, err)
	}

	doc := jwks{Keys: []jwk{publicKeyToJWK(key, keyID)}}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal jwks: %w", err)
	}
	out = append(out, '\n')

	if err := os.WriteFile(outputPath, out, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	fmt.Printf("Wrote JWKS to %s (kid=%s)\n", outputPath, keyID)
	return nil
}

func publicKeyToJWK(key *rsa.PublicKey, kid string) jwk {
	return jwk{
		Kty: "RSA",
		N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
	}
}

func init() {
	generateCmd.Flags().StringVar(&publicKeyPath, "public-key", "public.pem", "path to the RSA public key PEM")
	generateCmd.Flags().StringVar(&outputPath, "out", "jwks.json", "output path for the JWKS document")
	generateCmd.Flags().StringVar(&keyID, "kid", "lookout-ssf-key-1", "key id published in the JWKS")
	rootCmd.AddCommand(generateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
