// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config assembles the router's runtime Config from environment
// variables, layered over defaults and an optional static-backends YAML
// file. The file supplies only the static backend list; when it is set, it
// replaces STATIC_BACKENDS/STATIC_MODELS, and everything else comes from
// environment variables.
package config
