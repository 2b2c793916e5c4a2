// Package docs is generated by swaggo/swag from the handler annotations.
// Regenerate with `go generate ./cmd/signalflow`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/analysis/trigger": {
            "post": {
                "tags": ["analysis"],
                "summary": "Analyse one symbol now",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.triggerAnalysisRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/detectors": {
            "get": {
                "tags": ["analysis"],
                "summary": "Registered detectors and their counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/signals": {
            "get": {
                "tags": ["signals"],
                "summary": "List signals",
                "parameters": [
                    {"type": "string", "name": "symbol", "in": "query"},
                    {"type": "string", "name": "tier", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "source", "in": "query"},
                    {"type": "string", "name": "since", "in": "query"},
                    {"type": "string", "name": "until", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/signals/{id}": {
            "get": {
                "tags": ["signals"],
                "summary": "Get signal",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/v1/signals/{id}/close": {
            "post": {
                "tags": ["signals"],
                "summary": "Close a signal manually",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.closeSignalRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/v1/copytrade/scan": {
            "post": {
                "tags": ["copytrade"],
                "summary": "Scan all enabled traders now",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/copytrade/orders": {
            "get": {
                "tags": ["copytrade"],
                "summary": "List ingested copy orders",
                "parameters": [
                    {"type": "string", "name": "trader_id", "in": "query"},
                    {"type": "string", "name": "symbol", "in": "query"},
                    {"type": "string", "name": "since", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/copytrade/traders": {
            "get": {
                "tags": ["copytrade"],
                "summary": "List watched traders",
                "parameters": [{"type": "boolean", "name": "enabled", "in": "query"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/copytrade/traders/{trader_id}": {
            "put": {
                "tags": ["copytrade"],
                "summary": "Create or update a watched trader",
                "parameters": [
                    {"type": "string", "name": "trader_id", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.putTraderRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/system-settings": {
            "get": {
                "tags": ["settings"],
                "summary": "List runtime settings",
                "parameters": [{"type": "string", "name": "prefix", "in": "query"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/system-settings/{key}": {
            "put": {
                "tags": ["settings"],
                "summary": "Create or update a runtime setting",
                "description": "feature.* keys only accept a JSON boolean.",
                "parameters": [
                    {"type": "string", "name": "key", "in": "path", "required": true},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handler.putSystemSettingRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/ops/diagnostics": {
            "get": {
                "tags": ["ops"],
                "summary": "Per-symbol pipeline counters",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}}
            }
        },
        "/readyz": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "handler.apiResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "meta": {"type": "object", "additionalProperties": true}
            }
        },
        "handler.closeSignalRequest": {
            "type": "object",
            "properties": {
                "final_price": {"type": "string"},
                "notes": {"type": "string", "maxLength": 500}
            }
        },
        "handler.putSystemSettingRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "value": {}
            }
        },
        "handler.putTraderRequest": {
            "type": "object",
            "required": ["portfolio_id"],
            "properties": {
                "enabled": {"type": "boolean"},
                "monitor_interval_sec": {"type": "integer", "maximum": 86400, "minimum": 0},
                "nickname": {"type": "string", "maxLength": 120},
                "portfolio_id": {"type": "string", "maxLength": 64}
            }
        },
        "handler.triggerAnalysisRequest": {
            "type": "object",
            "required": ["symbol"],
            "properties": {
                "symbol": {"type": "string", "maxLength": 30}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Signalflow API",
	Description:      "Crypto signal analysis, lifecycle tracking and copy-trade monitoring.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
