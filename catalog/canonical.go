// Copyright (c) 2023-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package catalog

import (
	"strconv"
	"strings"
)

const listSeparator = ", "

// CanonicalText renders the semantic fields of a tool into the text that is
// embedded for search. Sections are emitted in a fixed order, one per line,
// with values taken verbatim. The result depends only on the tool's fields,
// so equal tools always yield byte-identical text.
func CanonicalText(tool Tool) string {
	var b strings.Builder

	writeSection := func(label, value string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
	}

	writeSection("Tool", tool.Name)
	writeSection("Description", tool.Description)
	writeSection("Categories", strings.Join(tool.CategoryNames(), listSeparator))
	writeSection("Tags", strings.Join(tool.TagNames(), listSeparator))
	writeSection("Strengths", strings.Join(tool.Strengths, listSeparator))
	writeSection("Limitations", strings.Join(tool.Limitations, listSeparator))
	writeSection("Use Cases", strings.Join(tool.UseCasePersonas, listSeparator))
	writeSection("Integrations", strings.Join(tool.Integrations, listSeparator))
	writeSection("Pricing", string(tool.PricingModel))
	writeSection("API Available", strconv.FormatBool(tool.APIAvailable))
	writeSection("Enterprise Ready", strconv.FormatBool(tool.EnterpriseReady))

	return strings.TrimSpace(b.String())
}
