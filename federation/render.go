package federation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// noContentMessage is returned when a peer reports success with nothing to
// show.
const noContentMessage = "Tool call succeeded, no content returned."

// genericErrorMessage is used when an error reply carries no extractable
// message at all.
const genericErrorMessage = "The remote tool reported an error."

// RenderResult renders a successful peer reply for the local caller.
// Structured content wins and is pretty-printed; otherwise content blocks
// are rendered and joined by blank lines; an empty reply yields a fixed
// placeholder. Media blocks are rendered as small descriptors, never as raw
// bytes.
func RenderResult(result *mcp.CallToolResult) string {
	if result == nil {
		return noContentMessage
	}

	if result.StructuredContent != nil {
		if data, err := json.MarshalIndent(result.StructuredContent, "", "  "); err == nil {
			return string(data)
		}
	}

	var parts []string
	for _, content := range result.Content {
		if rendered := renderBlock(content); rendered != "" {
			parts = append(parts, rendered)
		}
	}
	if len(parts) == 0 {
		return noContentMessage
	}
	return strings.Join(parts, "\n\n")
}

func renderBlock(content mcp.Content) string {
	switch c := content.(type) {
	case *mcp.TextContent:
		return c.Text
	case mcp.TextContent:
		return c.Text
	case *mcp.ImageContent:
		return fmt.Sprintf("[image %s, %d bytes base64]", c.MIMEType, len(c.Data))
	case mcp.ImageContent:
		return fmt.Sprintf("[image %s, %d bytes base64]", c.MIMEType, len(c.Data))
	case *mcp.AudioContent:
		return fmt.Sprintf("[audio %s, %d bytes base64]", c.MIMEType, len(c.Data))
	case mcp.AudioContent:
		return fmt.Sprintf("[audio %s, %d bytes base64]", c.MIMEType, len(c.Data))
	case *mcp.EmbeddedResource:
		return renderResource(c.Resource)
	case mcp.EmbeddedResource:
		return renderResource(c.Resource)
	default:
		if data, err := json.Marshal(content); err == nil {
			return string(data)
		}
		return fmt.Sprintf("[unknown content type: %T]", content)
	}
}

// renderResource renders an embedded resource's descriptor as JSON without
// inlining blob payloads.
func renderResource(resource mcp.ResourceContents) string {
	switch r := resource.(type) {
	case *mcp.TextResourceContents:
		return r.Text
	case mcp.TextResourceContents:
		return r.Text
	case *mcp.BlobResourceContents:
		return fmt.Sprintf(`{"resource":{"uri":%q,"mimeType":%q,"blobBytes":%d}}`, r.URI, r.MIMEType, len(r.Blob))
	case mcp.BlobResourceContents:
		return fmt.Sprintf(`{"resource":{"uri":%q,"mimeType":%q,"blobBytes":%d}}`, r.URI, r.MIMEType, len(r.Blob))
	default:
		if data, err := json.Marshal(resource); err == nil {
			return string(data)
		}
		return fmt.Sprintf("[unknown resource type: %T]", resource)
	}
}

// ExtractErrorMessage pulls a user-safe message out of an error reply,
// preferring a structured "message" field, then rendered text content, then
// a generic fallback. The raw peer payload is never passed through.
func ExtractErrorMessage(result *mcp.CallToolResult) string {
	if result == nil {
		return genericErrorMessage
	}

	if structured, ok := result.StructuredContent.(map[string]any); ok {
		if msg, ok := structured["message"].(string); ok && msg != "" {
			return msg
		}
	}

	var texts []string
	for _, content := range result.Content {
		text := ""
		switch c := content.(type) {
		case *mcp.TextContent:
			text = c.Text
		case mcp.TextContent:
			text = c.Text
		}
		if text == "" {
			continue
		}
		// Error payloads frequently arrive as a JSON object with a
		// message field inside a text block.
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
				if msg, ok := obj["message"].(string); ok && msg != "" {
					return msg
				}
			}
		}
		texts = append(texts, text)
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}
	return genericErrorMessage
}
