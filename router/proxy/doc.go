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

/*
Package proxy implements the completion request path: parse an
OpenAI-compatible request, filter the registry to backends serving the
requested model, pick one via the configured routing policy, forward the
request upstream, and stream the response back unchanged while feeding
token counts into the stats collector and workflow manager.
*/
package proxy
