// Package schemas holds the JSON Schema documents shipped with the service.
package schemas

import _ "embed"

// TemplateConfig is the JSON Schema a template's conf.json must satisfy.
//
//go:embed template_config.schema.json
var TemplateConfig string
