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
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendFileEntry is one static backend as it appears in a YAML backends
// file.
type BackendFileEntry struct {
	URL    string            `yaml:"url"`
	Models []string          `yaml:"models"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// BackendsFile is the root structure of a static-backends YAML file.
type BackendsFile struct {
	Version  string              `yaml:"version"`
	Backends []BackendFileEntry  `yaml:"static_backends"`
}

// LoadBackendsFile reads, expands, and parses a static-backends YAML file.
func LoadBackendsFile(path string) (*BackendsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backends file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var file BackendsFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse backends file: %w", err)
	}

	for i, b := range file.Backends {
		if b.URL == "" {
			return nil, fmt.Errorf("backends file entry %d is missing url", i)
		}
		if len(b.Models) == 0 {
			return nil, fmt.Errorf("backends file entry %d (%s) lists no models", i, b.URL)
		}
	}

	return &file, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME, with ${VAR_NAME:-default}
// falling back to a literal default when the variable is unset.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

// ExampleBackendsFile returns an example static-backends YAML document for
// use in documentation.
func ExampleBackendsFile() string {
	return `# Router static backend list.
# Environment variables can be referenced using ${VAR_NAME} or ${VAR_NAME:-default}.

version: "1"

static_backends:
  - url: ${ENGINE_PREFILL_1_URL:-http://engine-prefill-1:8000}
    models: [llama-3-70b]
    labels:
      role: prefill

  - url: ${ENGINE_DECODE_1_URL:-http://engine-decode-1:8000}
    models: [llama-3-70b]
    labels:
      role: decode

  - url: ${ENGINE_GENERAL_1_URL:-http://engine-general-1:8000}
    models: [llama-3-70b, mixtral-8x22b]
`
}
