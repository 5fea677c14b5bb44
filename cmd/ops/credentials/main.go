// Package main implements the credentials ops tool for the billgate platform.
//
// It covers the two manual provisioning steps the API never performs itself:
//
//	go run ./cmd/ops/credentials -generate-key
//	go run ./cmd/ops/credentials -generate-key -ssm-path /dev/billgate/gateway/credential_key
//	go run ./cmd/ops/credentials -tenant 42 -merchant-id 10000100 -merchant-key 46f0cd694581a -sandbox
//
// The first form generates the credential-encryption key (printed to stdout,
// or written to SSM as a SecureString when -ssm-path is set). The second
// encrypts a tenant's merchant credentials with that key and upserts them
// into merchant_credentials. The seeding form reads DATABASE_URL and
// GATEWAY_CREDENTIAL_KEY from the environment (a .env file is honored).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/joho/godotenv"

	"billgate/internal/config"
	"billgate/internal/db"
	"billgate/internal/types"
)

// credentialKeyBytes is the size of the generated encryption key. 32 bytes
// hex-encodes to the 64-character string GATEWAY_CREDENTIAL_KEY expects.
const credentialKeyBytes = 32

const ssmOperationTimeout = 15 * time.Second

// SSMWriter is the subset of the AWS SSM API the tool needs. Tests inject a
// mock.
type SSMWriter interface {
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout *os.File) error {
	fs := flag.NewFlagSet("credentials", flag.ContinueOnError)
	generateKey := fs.Bool("generate-key", false, "generate a credential-encryption key and exit")
	ssmPath := fs.String("ssm-path", "", "SSM parameter path to write the generated key to (SecureString)")
	region := fs.String("region", "af-south-1", "AWS region for SSM operations")

	tenantID := fs.Int64("tenant", 0, "tenant id to seed credentials for")
	merchantID := fs.String("merchant-id", "", "gateway merchant id")
	merchantKey := fs.String("merchant-key", "", "gateway merchant key")
	passphrase := fs.String("passphrase", "", "gateway passphrase (optional)")
	sandbox := fs.Bool("sandbox", false, "mark the credentials as sandbox")

	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	if *generateKey {
		return runGenerateKey(ctx, stdout, logger, *ssmPath, *region)
	}
	return runSeed(ctx, logger, seedParams{
		TenantID:    *tenantID,
		MerchantID:  *merchantID,
		MerchantKey: *merchantKey,
		Passphrase:  *passphrase,
		Sandbox:     *sandbox,
	})
}

// runGenerateKey generates a fresh key and either prints it or stores it in
// SSM. The key is never logged; only the destination path is.
func runGenerateKey(ctx context.Context, stdout *os.File, logger *slog.Logger, ssmPath, region string) error {
	key, err := generateCredentialKey()
	if err != nil {
		return err
	}

	if ssmPath == "" {
		fmt.Fprintln(stdout, key)
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}

	if err := putSecureParameter(ctx, ssm.NewFromConfig(awsCfg), ssmPath, key); err != nil {
		return err
	}
	logger.Info("credential key written to SSM", "path", ssmPath, "value_length", len(key))
	return nil
}

// generateCredentialKey produces a 64-character hex key from the OS entropy
// source.
func generateCredentialKey() (string, error) {
	buf := make([]byte, credentialKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating credential key: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// putSecureParameter writes a SecureString parameter, overwriting any
// existing value.
func putSecureParameter(ctx context.Context, client SSMWriter, path, value string) error {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}
	return nil
}

type seedParams struct {
	TenantID    int64
	MerchantID  string
	MerchantKey string
	Passphrase  string
	Sandbox     bool
}

func (p seedParams) validate() error {
	if p.TenantID <= 0 {
		return fmt.Errorf("-tenant must be a positive tenant id")
	}
	if p.MerchantID == "" {
		return fmt.Errorf("-merchant-id is required")
	}
	if p.MerchantKey == "" {
		return fmt.Errorf("-merchant-key is required")
	}
	return nil
}

// runSeed encrypts the given merchant credentials and upserts them for the
// tenant.
func runSeed(ctx context.Context, logger *slog.Logger, p seedParams) error {
	if err := p.validate(); err != nil {
		return err
	}

	// Best effort; environment variables win over the dotenv file.
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	credentialKey := os.Getenv("GATEWAY_CREDENTIAL_KEY")
	if credentialKey == "" {
		return fmt.Errorf("GATEWAY_CREDENTIAL_KEY is not set")
	}

	cipher, err := db.NewCipher(credentialKey)
	if err != nil {
		return fmt.Errorf("initializing credential cipher: %w", err)
	}

	pool, err := db.NewPool(ctx, config.DatabaseConfig{
		URL:               types.SecretString(databaseURL),
		MaxConns:          2,
		MinConns:          1,
		MaxConnLifetime:   time.Minute,
		AcquireTimeout:    5 * time.Second,
		HealthCheckPeriod: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("connecting database pool: %w", err)
	}
	defer pool.Close()

	repo := db.NewCredentialRepository(pool, cipher, types.MerchantCredentials{})
	err = repo.Store(ctx, types.MerchantCredentials{
		TenantID:    p.TenantID,
		MerchantID:  p.MerchantID,
		MerchantKey: types.SecretString(p.MerchantKey),
		Passphrase:  types.SecretString(p.Passphrase),
		Sandbox:     p.Sandbox,
	})
	if err != nil {
		return fmt.Errorf("storing credentials for tenant %d: %w", p.TenantID, err)
	}

	logger.Info("merchant credentials stored",
		"tenant_id", p.TenantID,
		"merchant_id", p.MerchantID,
		"sandbox", p.Sandbox,
		"has_passphrase", p.Passphrase != "",
	)
	return nil
}
