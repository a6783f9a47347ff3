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

/*
Package config loads the optional static-backends YAML file and resolves
secrets for the router. The file carries only a version and the static
backend list; every other option comes from environment variables.

YAML values go through ${VAR} / ${VAR:-default} expansion before parsing,
so a single checked-in file can vary by environment without templating:

	static_backends:
	  - url: ${ENGINE_1_URL}
	    models: [llama-3-70b]
	    labels: {role: prefill}

Secrets (the cluster-controller bearer token) may instead be resolved from
AWS Secrets Manager by ARN at startup; see AWSSecretsManager.
*/
package config
