// Copyright 2026 Anaphor Labs
//
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

// Command anaphor runs the Anaphor coreference resolution service.
//
// Anaphor resolves coreference clusters in tokenized documents and
// optionally ranks candidate responses against a query using an ONNX
// sentence encoder.
//
// Usage:
//
//	anaphor run                    # Start the server
//	anaphor resolve <file.json>    # Resolve one document file to stdout
//	anaphor train <file.jsonl>     # Run training steps over a document file
//	anaphor pull <hf-repo>         # Download ranker model files from HuggingFace
package main

import (
	"runtime"

	"github.com/anaphorlab/anaphor/cmd/cmd"
)

// https://goreleaser.com/cookbooks/using-main.version/
//
// By default, GoReleaser will set the following 3 ldflags:
//
// main.version: Current Git tag (the v prefix is stripped) or the name of the snapshot, if you're using the --snapshot flag
var version = "dev"

// main.commit: Current git commit SHA
// commit = "none"
// main.date: Date in the RFC3339 format
// date = "unknown"

func main() {
	runtime.SetMutexProfileFraction(1) // Enable mutex profiling
	runtime.SetBlockProfileRate(1)     // Sample every blocking event
	cmd.Version = version
	cmd.Execute()
}
