// Package config bootstraps a higgsd process from its environment: the
// listen port, the blob storage backend to use, and the embedded TLS
// identity. There is no persisted, user-editable configuration store here
// (unlike the teacher's config.Store/sqlite/raft-backed settings) — this
// system has nothing for an operator to declare beyond "where do I listen"
// and "where do snapshots go", so Options is a plain struct built once at
// startup from env vars and embedded assets, not a long-lived store.
package config

import (
	"embed"
	"fmt"
	"os"
)

//go:embed assets/dev_cert.pem assets/dev_key.pem
var assets embed.FS

// BlobBackend selects which blobstore.Client implementation a process
// wires up.
type BlobBackend string

const (
	BackendMemory    BlobBackend = "memory"
	BackendS3        BlobBackend = "s3"
	BackendAzureBlob BlobBackend = "azureblob"
	BackendGCS       BlobBackend = "gcs"
)

const defaultPort = "4433"

// Options is everything a higgsd process needs to start listening.
type Options struct {
	// Port is the QUIC listen port, from PORT (default 4433).
	Port string

	// Backend selects the blob storage implementation, from BLOB_BACKEND
	// (default memory, for zero-config boot).
	Backend BlobBackend

	// S3Region is read when Backend is s3, from AWS_REGION.
	S3Region string

	// AzureServiceURL and AzureAccountKey are read when Backend is
	// azureblob, from AZURE_BLOB_SERVICE_URL and AZURE_STORAGE_ACCOUNT_KEY.
	AzureServiceURL string
	AzureAccountKey string

	// TLSCertPEM and TLSKeyPEM are the embedded dev TLS identity, unless
	// overridden by TLS_CERT_FILE/TLS_KEY_FILE.
	TLSCertPEM []byte
	TLSKeyPEM  []byte
}

// Load reads Options from the process environment, falling back to the
// embedded development TLS identity when no override is configured.
func Load() (Options, error) {
	opts := Options{
		Port:    envOr("PORT", defaultPort),
		Backend: BlobBackend(envOr("BLOB_BACKEND", string(BackendMemory))),

		S3Region: os.Getenv("AWS_REGION"),

		AzureServiceURL: os.Getenv("AZURE_BLOB_SERVICE_URL"),
		AzureAccountKey: os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
	}

	switch opts.Backend {
	case BackendMemory, BackendS3, BackendAzureBlob, BackendGCS:
	default:
		return Options{}, fmt.Errorf("config: unknown BLOB_BACKEND %q", opts.Backend)
	}

	certPEM, keyPEM, err := loadTLSIdentity()
	if err != nil {
		return Options{}, err
	}
	opts.TLSCertPEM = certPEM
	opts.TLSKeyPEM = keyPEM

	return opts, nil
}

func loadTLSIdentity() (certPEM, keyPEM []byte, err error) {
	if certFile := os.Getenv("TLS_CERT_FILE"); certFile != "" {
		keyFile := os.Getenv("TLS_KEY_FILE")
		certPEM, err = os.ReadFile(certFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read TLS_CERT_FILE: %w", err)
		}
		keyPEM, err = os.ReadFile(keyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read TLS_KEY_FILE: %w", err)
		}
		return certPEM, keyPEM, nil
	}

	certPEM, err = assets.ReadFile("assets/dev_cert.pem")
	if err != nil {
		return nil, nil, fmt.Errorf("read embedded dev certificate: %w", err)
	}
	keyPEM, err = assets.ReadFile("assets/dev_key.pem")
	if err != nil {
		return nil, nil, fmt.Errorf("read embedded dev key: %w", err)
	}
	return certPEM, keyPEM, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
