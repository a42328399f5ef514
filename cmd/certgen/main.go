// Package main generates the development PKI for the mTLS link between the
// gate and the permissions API, writing it under -dir. With -ca-cert and
// -ca-key an existing CA signs the new pairs instead of a fresh one.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/PermKeeper/internal/certgen"
)

func main() {
	var (
		dir    string
		host   string
		client string
		caCert string
		caKey  string
	)
	flag.StringVar(&dir, "dir", "certs", "output directory")
	flag.StringVar(&host, "host", "localhost", "permissions API host name or IP")
	flag.StringVar(&client, "client", "permkeeper-gate", "client certificate common name")
	flag.StringVar(&caCert, "ca-cert", "", "existing CA certificate to issue from")
	flag.StringVar(&caKey, "ca-key", "", "private key of -ca-cert")
	flag.Parse()

	if err := generate(dir, host, client, caCert, caKey); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ Certificates generated into %s\n", dir)
}

// generate writes server.{crt,key}, client.{crt,key} and ca.crt. A new CA
// is created, and its key written to ca.key, unless caCert and caKey name
// an existing one.
func generate(dir, host, client, caCert, caKey string) error {
	ca, err := authority(dir, caCert, caKey)
	if err != nil {
		return err
	}

	for _, c := range []struct {
		name  string
		cn    string
		usage certgen.Usage
	}{
		{"server", host, certgen.UsageServer},
		{"client", client, certgen.UsageClient},
	} {
		certPEM, keyPEM, err := ca.Issue(c.cn, c.usage)
		if err != nil {
			return fmt.Errorf("issue %s: %w", c.name, err)
		}
		if _, _, err := certgen.WritePair(dir, c.name, certPEM, keyPEM); err != nil {
			return err
		}
	}
	return nil
}

func authority(dir, caCert, caKey string) (*certgen.Authority, error) {
	if (caCert == "") != (caKey == "") {
		return nil, errors.New("-ca-cert and -ca-key must be set together")
	}
	if caCert != "" {
		ca, err := certgen.LoadAuthority(caCert, caKey)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return ca, os.WriteFile(filepath.Join(dir, "ca.crt"), ca.CertPEM(), 0o644)
	}

	ca, err := certgen.NewAuthority("PermKeeper CA", 10*365*24*time.Hour)
	if err != nil {
		return nil, err
	}
	keyPEM, err := ca.KeyPEM()
	if err != nil {
		return nil, err
	}
	if _, _, err := certgen.WritePair(dir, "ca", ca.CertPEM(), keyPEM); err != nil {
		return nil, err
	}
	return ca, nil
}
