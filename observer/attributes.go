package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for MCP observability spans and metrics.
var (
	AttrServer    = attribute.Key("mcp.server")
	AttrTool      = attribute.Key("mcp.tool")
	AttrMethod    = attribute.Key("mcp.method")
	AttrStatus    = attribute.Key("mcp.status")
	AttrToolCount = attribute.Key("mcp.tool_count")

	AttrContentBlocks = attribute.Key("mcp.result.content_blocks")

	AttrServerName    = attribute.Key("mcp.server.name")
	AttrServerVersion = attribute.Key("mcp.server.version")
)
