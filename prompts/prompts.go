// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package prompts

//go:generate go run generate_prompt_vars.go

import "embed"

// PromptsFolder holds the prompt templates, one directory per version.
// A published version is never edited; changes go into a new version.
//
//go:embed v*/*.tmpl
var PromptsFolder embed.FS

// LatestVersion is the version used when none is configured.
const LatestVersion = "v1"
