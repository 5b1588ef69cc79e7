/*
Copyright 2025 The viecap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging defines the verbosity levels used with klog across the
// module.
package logging

const (
	// DEFAULT is the verbosity of messages that are always logged.
	DEFAULT = 0
	// DEBUG is the verbosity of messages useful when debugging a build.
	DEBUG = 4
	// TRACE is the verbosity of per-caption and per-token messages.
	TRACE = 5
)
