package api

import (
	"net/http"
)

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the fixed routes plus
// one path per registered channel.
func buildOpenAPIDoc(channels []ChannelInfo) map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	paths := map[string]any{
		"/healthz": map[string]any{
			"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Host counters and config digest",
				"responses":   map[string]any{"200": map[string]any{"description": "Healthy"}},
			},
		},
		"/channels": map[string]any{
			"get": map[string]any{
				"operationId": "listChannels",
				"summary":     "Registered channels",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "Channel list"}},
			},
		},
		"/frames": map[string]any{
			"post": frameOperation("sendFrame", "Send a JSON frame to the channel it names", secured),
		},
		"/events": map[string]any{
			"get": map[string]any{
				"operationId": "events",
				"summary":     "Server-sent stream of traffic events",
				"security":    secured,
				"responses":   map[string]any{"200": map[string]any{"description": "text/event-stream"}},
			},
		},
	}

	for _, ch := range channels {
		paths["/channels/"+ch.Name] = map[string]any{
			"post": map[string]any{
				"operationId": ch.Name + "__raw",
				"summary":     "Send raw bytes to " + ch.Name + " (" + ch.Kind + " channel)",
				"tags":        []string{ch.Kind},
				"security":    secured,
				"parameters": []any{map[string]any{
					"name":   "reply",
					"in":     "query",
					"schema": map[string]any{"type": "boolean", "default": true},
				}},
				"requestBody": map[string]any{
					"content": map[string]any{
						"application/octet-stream": map[string]any{"schema": map[string]any{"type": "string", "format": "binary"}},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Reply bytes"},
					"202": map[string]any{"description": "Accepted without reply"},
					"404": map[string]any{"description": "Channel not registered"},
					"504": map[string]any{"description": "No reply within the timeout"},
				},
			},
		}
		paths["/channels/"+ch.Name+framesSuffix] = map[string]any{
			"post": frameOperation(ch.Name+"__frame", "Send a JSON frame to "+ch.Name, secured),
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Embedder Runtime Host",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func frameOperation(id, summary string, security []any) map[string]any {
	return map[string]any{
		"operationId": id,
		"summary":     summary,
		"security":    security,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{
						"type":     "object",
						"required": []string{"protocol", "channel"},
						"properties": map[string]any{
							"protocol": map[string]any{"type": "integer", "const": 1},
							"channel":  map[string]any{"type": "string"},
							"payload":  map[string]any{"type": "string", "contentEncoding": "base64"},
							"reply":    map[string]any{"type": "boolean", "default": true},
							"codec":    map[string]any{"type": "string"},
						},
					},
				},
			},
		},
		"responses": map[string]any{
			"200": map[string]any{"description": "Reply frame"},
			"202": map[string]any{"description": "Accepted without reply"},
			"400": map[string]any{"description": "Malformed frame"},
		},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.channelInfos()))
}
