// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Seam components.
//
// Configuration comes from a single YAML file named by either the
// SEAM_CONFIG environment variable or a --config flag. There is no
// search path and no automatic discovery, so a deployment's effective
// configuration is always the file plus Default() and nothing else.
//
// The file may contain environment sections (development, staging,
// production) whose non-zero fields override the base values when
// Environment matches. After overrides, ${VAR} and ${VAR:-default}
// patterns expand in the secret-bearing fields (store password, IdP
// token) and machine-local paths, so credentials stay out of the file.
//
// Components do not consume this package's structs directly; each
// takes its own narrow config struct and the daemon maps one onto the
// other at wiring time.
package config
