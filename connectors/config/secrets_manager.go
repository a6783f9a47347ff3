// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// TokenResolver resolves the bearer token the Registry's controller-polled
// discovery mode presents to the cluster controller.
type TokenResolver interface {
	ResolveToken(ctx context.Context, secretARN string) (string, error)
}

// AWSSecretsManager resolves a controller bearer token from an AWS Secrets
// Manager ARN, caching the value for a configurable TTL so repeated lookups
// of the same ARN do not each call Secrets Manager.
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]cachedToken
	mu     sync.RWMutex
	ttl    time.Duration
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
}

func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfgOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]cachedToken),
		ttl:    ttl,
	}, nil
}

// ResolveToken fetches secretARN's SecretString and returns it verbatim as
// the bearer token. A cache hit skips the network call entirely.
func (s *AWSSecretsManager) ResolveToken(ctx context.Context, secretARN string) (string, error) {
	s.mu.RLock()
	entry, ok := s.cache[secretARN]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	s.mu.Lock()
	s.cache[secretARN] = cachedToken{value: *out.SecretString, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return *out.SecretString, nil
}

// Invalidate forces the next ResolveToken for secretARN to hit the network.
func (s *AWSSecretsManager) Invalidate(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
