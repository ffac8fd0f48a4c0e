package kms

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// kmsClient is the subset of *kms.Client the provider needs, so tests can
// substitute a stub instead of calling AWS.
type kmsClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSProvider implements pii.KeyProvider using AWS KMS envelope
// encryption. It extends the same aws-sdk-go-v2 family the pack already
// depends on for S3 (services/media-worker, services/media-service) to
// KMS's GenerateDataKey/Decrypt calls.
type AWSProvider struct {
	client kmsClient
	keyARN string
	cache  *dekCache
}

// NewAWSProvider constructs a provider against a pre-built aws.Config,
// targeting KMS key keyARN.
func NewAWSProvider(cfg aws.Config, keyARN string) *AWSProvider {
	return &AWSProvider{
		client: kms.NewFromConfig(cfg),
		keyARN: keyARN,
		cache:  newDEKCache(defaultDEKCacheTTL, defaultDEKCacheSize),
	}
}

func (p *AWSProvider) SupportsEnvelope() bool { return true }

func (p *AWSProvider) StaticKey() ([]byte, error) {
	return nil, fmt.Errorf("kms: aws provider only supports envelope encryption")
}

func (p *AWSProvider) GenerateDataKey(ctx context.Context) ([]byte, []byte, error) {
	out, err := p.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(p.keyARN),
		KeySpec: kmstypes.DataKeySpecAes256,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("kms: aws generate data key: %w", err)
	}
	return out.Plaintext, out.CiphertextBlob, nil
}

func (p *AWSProvider) DecryptDataKey(ctx context.Context, encrypted []byte) ([]byte, error) {
	cacheKey := string(encrypted)
	now := time.Now()
	if pt, ok := p.cache.get(cacheKey, now); ok {
		return pt, nil
	}

	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: encrypted,
		KeyId:          aws.String(p.keyARN),
	})
	if err != nil {
		return nil, fmt.Errorf("kms: aws decrypt data key: %w", err)
	}
	p.cache.put(cacheKey, out.Plaintext, now)
	return out.Plaintext, nil
}

// InvalidateCache atomically clears the DEK cache, used by callers
// reacting to a KMS key rotation event.
func (p *AWSProvider) InvalidateCache() { p.cache.invalidate() }
