// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/nexauth/oidcserver/authserverconfig"
	"github.com/nexauth/oidcserver/internal/obslog"
)

const (
	ephemeralRSABits     = authserverconfig.MinRSAKeyBits
	ephemeralHMACSecretN = 32
)

// resolveSigningKey loads a PEM-encoded private key from path, or — if
// path is empty — mints a throwaway RSA-2048/RS256 key for local
// development, mirroring the teacher's GeneratingProvider fallback
// (server/keys.createKeyProvider: nil/empty config returns a generating
// provider rather than failing startup).
func resolveSigningKey(path, keyID, algorithm string) (crypto.Signer, string, string, error) {
	if path == "" {
		obslog.Warn("no signing_key_file configured; generating an ephemeral RSA key for this process only")
		key, err := rsa.GenerateKey(rand.Reader, ephemeralRSABits)
		if err != nil {
			return nil, "", "", fmt.Errorf("generating ephemeral signing key: %w", err)
		}
		if keyID == "" {
			keyID = "ephemeral"
		}
		return key, keyID, "RS256", nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", "", fmt.Errorf("reading signing key file: %w", err)
	}
	key, err := parsePEMPrivateKey(raw)
	if err != nil {
		return nil, "", "", err
	}
	if keyID == "" {
		return nil, "", "", fmt.Errorf("signing_key_id is required when signing_key_file is set")
	}
	if algorithm == "" {
		algorithm = defaultAlgorithmFor(key)
	}
	return key, keyID, algorithm, nil
}

// parsePEMPrivateKey accepts the same PEM block flavors the teacher's
// LoadSigningKey table exercises: PKCS1/SEC1 and PKCS8, in either order,
// using the first PEM block found in the file.
func parsePEMPrivateKey(raw []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("unrecognized private key encoding: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("key type %T does not implement crypto.Signer", key)
	}
	return signer, nil
}

func defaultAlgorithmFor(key crypto.Signer) string {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P384():
			return "ES384"
		case elliptic.P521():
			return "ES512"
		default:
			return "ES256"
		}
	default:
		return "RS256"
	}
}

// resolveHMACSecrets reads one secret per file, hex-decoding values that
// parse as hex and otherwise taking the trimmed file contents as raw bytes.
// The first file is the current signing secret; the rest are rotated
// (verify-only). No files given mints an ephemeral secret, logged as a
// loud warning since every replica of a multi-instance deployment must
// share the same value.
func resolveHMACSecrets(files []string) (current []byte, rotated [][]byte, err error) {
	if len(files) == 0 {
		obslog.Warn("no hmac_secret_files configured; generating an ephemeral secret for this process only")
		secret := make([]byte, ephemeralHMACSecretN)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, fmt.Errorf("generating ephemeral HMAC secret: %w", err)
		}
		return secret, nil, nil
	}

	secrets := make([][]byte, 0, len(files))
	for _, path := range files {
		secret, err := readSecretFile(path)
		if err != nil {
			return nil, nil, err
		}
		secrets = append(secrets, secret)
	}
	return secrets[0], secrets[1:], nil
}

func readSecretFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HMAC secret file %q: %w", path, err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if decoded, err := hex.DecodeString(trimmed); err == nil {
		return decoded, nil
	}
	return []byte(trimmed), nil
}
