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
Package logger provides structured JSON logging for the router's components.

Each log entry is a single JSON object written through the standard log
package (stderr by default), so each line carries that package's date/time
prefix ahead of the JSON.

Each entry includes a timestamp, level, component name, router instance id,
and an optional request/workflow correlation id, plus a free-form fields map
for component-specific context (endpoint URL, workflow id, policy name, ...).

	log := logger.New("registry")
	log.Info("req-123", "refreshed endpoint set", map[string]interface{}{
	    "count": 4,
	})
*/
package logger
