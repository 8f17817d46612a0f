package api

const statusDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Status Stream - capturewatch</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    main { max-width: 860px; margin: 0 auto; padding: 32px 24px; }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #f0f6fc; font-weight: 600; }
    code, pre {
      font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
    }
    code { padding: 1px 5px; }
    pre { padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
  </style>
</head>
<body>
<main>
  <p><a href="/docs">&larr; API reference</a></p>
  <h1>Status stream</h1>
  <p>
    Every time a tab's capture state changes (a better translator replaces the
    cached one, a frame is hidden, a tab is selected or closed) capturewatch
    pushes the tab's current view to subscribers. Renderers redraw from the
    payload or re-query <code>GET /api/v1/contexts/{context_id}/capture</code>.
  </p>

  <h2>Endpoints</h2>
  <table>
    <tr><th>Transport</th><th>Path</th></tr>
    <tr><td>Server-Sent Events</td><td><code>GET /api/v1/status/stream</code></td></tr>
    <tr><td>WebSocket (text frames)</td><td><code>GET /api/v1/status/ws</code></td></tr>
  </table>
  <p>
    Both accept <code>?contexts=a,b</code> to receive events for the listed
    contexts only. Slow subscribers have events dropped rather than blocking
    the service.
  </p>

  <h2>SSE</h2>
<pre>curl -N http://127.0.0.1:8190/api/v1/status/stream

event: status
data: {"context_id":"6F2E...","affordance":"translatable", ...}</pre>

  <h2>WebSocket</h2>
<pre>const ws = new WebSocket("ws://127.0.0.1:8190/api/v1/status/ws");
ws.onmessage = (m) =&gt; render(JSON.parse(m.data));</pre>

  <h2>Payload</h2>
<pre>{
  "context_id": "6F2E...",
  "affordance": "translatable",
  "save_enabled": true,
  "best": {"id": "doi", "priority": 40, "label": "DOI", "item_type": "journalArticle"},
  "translators": [...],
  "frame_url": "https://example.org/article",
  "is_top_frame": true,
  "selected": true,
  "updated_at": "2026-01-02T03:04:05Z",
  "badge": {
    "icon": "itemtype-journalArticle",
    "icon_hidpi": "itemtype-journalArticle@2x",
    "tooltip": "Save to Library (DOI)",
    "command": ""
  }
}</pre>
  <p>
    <code>closed: true</code> is sent once when a context goes away.
    <code>affordance</code> is <code>disabled</code>, <code>generic</code>
    (save as web page, <code>command</code> is set) or
    <code>translatable</code>.
  </p>
</main>
</body>
</html>`
