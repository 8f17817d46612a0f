package api

import (
	"html"
	"strings"
)

const elementsVersion = "9.0.0"

type docsLink struct {
	href  string
	label string
}

// docsNav is shown on the API reference so renderer authors can find the
// push channel without reading the OpenAPI document.
var docsNav = []docsLink{
	{href: "/docs/status", label: "Status stream"},
	{href: "/openapi.json", label: "OpenAPI JSON"},
}

var docsHTML = apiReferencePage("capturewatch API", "/openapi.json", docsNav)

func apiReferencePage(title, openapiURL string, nav []docsLink) string {
	var links strings.Builder
	for _, l := range nav {
		links.WriteString(`<a href="` + html.EscapeString(l.href) + `">` + html.EscapeString(l.label) + `</a>`)
	}

	r := strings.NewReplacer(
		"{{title}}", html.EscapeString(title),
		"{{openapi}}", html.EscapeString(openapiURL),
		"{{version}}", elementsVersion,
		"{{links}}", links.String(),
	)
	return r.Replace(apiReferenceTemplate)
}

const apiReferenceTemplate = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="referrer" content="same-origin" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{title}}</title>
  <link href="https://unpkg.com/@stoplight/elements@{{version}}/styles.min.css" rel="stylesheet" />
  <script src="https://unpkg.com/@stoplight/elements@{{version}}/web-components.min.js" crossorigin="anonymous"></script>
  <style>
    body { height: 100vh; margin: 0; display: flex; flex-direction: column; }
    nav {
      display: flex;
      gap: 16px;
      justify-content: flex-end;
      padding: 6px 16px;
      background: #161b22;
      border-bottom: 1px solid #30363d;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
      font-size: 12px;
    }
    nav a { color: #58a6ff; text-decoration: none; }
    elements-api { flex: 1; min-height: 0; }
  </style>
</head>
<body>
  <nav>{{links}}</nav>
  <elements-api
    apiDescriptionUrl="{{openapi}}"
    router="hash"
    layout="sidebar"
    tryItCredentialsPolicy="same-origin"
    darkMode
  />
</body>
</html>`
