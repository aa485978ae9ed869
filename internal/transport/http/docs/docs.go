// Package docs registers the OpenAPI document served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {"description": "{{escape .Description}}", "title": "{{.Title}}", "contact": {}, "version": "{{.Version}}"},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/healthz": {
			"get": {"tags": ["Health"], "summary": "Service health check", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}}
		},
		"/readyz": {
			"get": {"tags": ["Health"], "summary": "Service readiness check", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}}
		},
		"/api/v1/captcha/config": {
			"get": {"tags": ["Captcha"], "summary": "Captcha config for a scene", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}}
		},
		"/api/v1/captcha/geetest/config": {
			"get": {"tags": ["Captcha"], "summary": "Geetest config for a scene", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}}
		},
		"/api/v1/captcha/local/challenge": {
			"post": {"tags": ["Captcha"], "summary": "Issue a local arithmetic challenge", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}}
		},
		"/api/v1/captcha/verify": {
			"post": {"tags": ["Captcha"], "summary": "Verify a captcha", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Captcha payload", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/captcha/second-verify": {
			"post": {"tags": ["Captcha"], "summary": "Redeem a captcha proof", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Proof redemption", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/codes/send": {
			"post": {"tags": ["Codes"], "summary": "Send a verification code", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Send request", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/codes/verify": {
			"post": {"tags": ["Codes"], "summary": "Verify a code", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Verify request", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/SendPasswordResetCode": {
			"post": {"tags": ["Password"], "summary": "Send a password reset code", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Reset method", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/VerifyPasswordResetCode": {
			"post": {"tags": ["Password"], "summary": "Verify a password reset code", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Reset code", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/ResetPassword": {
			"post": {"tags": ["Password"], "summary": "Reset the password", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Reset token and new password", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/contact/change/start": {
			"post": {"tags": ["Contact"], "summary": "Start a phone or email change", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Step payload", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/contact/change/verify-current": {
			"post": {"tags": ["Contact"], "summary": "Verify the current contact", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Step payload", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/contact/change/send-new": {
			"post": {"tags": ["Contact"], "summary": "Send a code to the new contact", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Step payload", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/contact/change/confirm": {
			"post": {"tags": ["Contact"], "summary": "Confirm the new contact", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Step payload", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/auth/register": {
			"post": {"tags": ["Auth"], "summary": "Register an account", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Registration", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/auth/login": {
			"post": {"tags": ["Auth"], "summary": "Sign in", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/auth/refresh": {
			"post": {"tags": ["Auth"], "summary": "Rotate tokens", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"description": "Refresh token", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/auth/logout": {
			"post": {"tags": ["Auth"], "summary": "Sign out", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}]}
		},
		"/api/v1/auth/me": {
			"get": {"tags": ["Auth"], "summary": "Current user", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}]}
		},
		"/api/v1/admin/rate-limit-rules": {
			"get": {"tags": ["Admin"], "summary": "List rate limit rules", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}]},
			"post": {"tags": ["Admin"], "summary": "Create a rate limit rule", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Definition", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/admin/rate-limit-rules/{id}": {
			"put": {"tags": ["Admin"], "summary": "Replace a rate limit rule", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}, {"description": "Definition", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/admin/rate-limit-rules/{id}/enabled": {
			"patch": {"tags": ["Admin"], "summary": "Enable or disable a rate limit rule", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}, {"description": "Flag", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/admin/captcha-configs": {
			"get": {"tags": ["Admin"], "summary": "List captcha configs", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}]},
			"post": {"tags": ["Admin"], "summary": "Create a captcha config", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"description": "Definition", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/admin/captcha-configs/{id}": {
			"put": {"tags": ["Admin"], "summary": "Replace a captcha config", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}, {"description": "Definition", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		},
		"/api/v1/admin/captcha-configs/{id}/enabled": {
			"patch": {"tags": ["Admin"], "summary": "Enable or disable a captcha config", "produces": ["application/json"], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.Envelope"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.Envelope"}}}, "consumes": ["application/json"], "parameters": [{"type": "string", "description": "Bearer access token", "name": "Authorization", "in": "header", "required": true}, {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}, {"description": "Flag", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}]}
		}
	},
	"definitions": {"handlers.Envelope": {"type": "object", "properties": {"success": {"type": "boolean"}, "data": {}, "message": {"type": "string"}, "trace_id": {"type": "string"}}}}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Identity Portal API",
	Description:      "Verification codes, captcha, password reset and account endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
