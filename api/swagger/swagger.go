package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SchoolPay API",
        "description": "Multi-tenant school fee ledger and payment reconciliation API",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and password flows"},
        {"name": "Students", "description": "Student roster management"},
        {"name": "Fees", "description": "Fee structures, balances and defaulters"},
        {"name": "Payments", "description": "Payment ledger, refunds and receipts"},
        {"name": "Gateway", "description": "Online checkout via razorpay/stripe"},
        {"name": "Analytics", "description": "Collection analytics"},
        {"name": "Exports", "description": "CSV/PDF report exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Enroll student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fees/structures": {
            "get": {
                "tags": ["Fees"],
                "summary": "List fee structures",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "academic_year", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Fees"],
                "summary": "Create fee structure",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FeeStructureRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fees/students/{id}/status": {
            "get": {
                "tags": ["Fees"],
                "summary": "Fee status for one student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fees/defaulters": {
            "get": {
                "tags": ["Fees"],
                "summary": "List students with overdue balances",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/fees/reminders": {
            "post": {
                "tags": ["Fees"],
                "summary": "Send overdue fee reminders",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments": {
            "get": {
                "tags": ["Payments"],
                "summary": "List payments",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "mode", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "date_from", "in": "query", "type": "string"},
                    {"name": "date_to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Payments"],
                "summary": "Record a payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordPaymentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/{id}/refund": {
            "post": {
                "tags": ["Payments"],
                "summary": "Refund a payment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefundPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/payments/{id}/receipt": {
            "get": {
                "tags": ["Payments"],
                "summary": "Download the PDF receipt",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF receipt"}
                }
            }
        },
        "/gateway/order": {
            "post": {
                "tags": ["Gateway"],
                "summary": "Create a provider order",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateOrderRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/gateway/callback": {
            "post": {
                "tags": ["Gateway"],
                "summary": "Verify a provider callback and record the payment",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GatewayCallbackRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Signature verification failed"}
                }
            }
        },
        "/analytics/fees": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Fee collection analytics",
                "parameters": [
                    {"name": "date_from", "in": "query", "type": "string"},
                    {"name": "date_to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Generate a fee report export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateExportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a generated export via signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Export file"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "admission_no": {"type": "string"},
                "full_name": {"type": "string"},
                "phone": {"type": "string"},
                "guardian_name": {"type": "string"},
                "guardian_email": {"type": "string"}
            },
            "required": ["class_id", "admission_no", "full_name"]
        },
        "FeeStructureRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "academic_year": {"type": "string"},
                "total_fee": {"type": "string"},
                "tuition_fee": {"type": "string"},
                "transport_fee": {"type": "string"},
                "library_fee": {"type": "string"},
                "installments": {"type": "integer"},
                "due_dates": {"type": "array", "items": {"type": "string"}},
                "is_active": {"type": "boolean"}
            },
            "required": ["class_id", "academic_year"]
        },
        "RecordPaymentRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "amount": {"type": "string"},
                "payment_date": {"type": "string"},
                "payment_mode": {"type": "string"},
                "transaction_id": {"type": "string"},
                "cheque_no": {"type": "string"},
                "bank_name": {"type": "string"},
                "remarks": {"type": "string"}
            },
            "required": ["student_id", "amount", "payment_mode"]
        },
        "RefundPaymentRequest": {
            "type": "object",
            "properties": {
                "amount": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "CreateOrderRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "amount": {"type": "string"}
            },
            "required": ["student_id"]
        },
        "GatewayCallbackRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "order_id": {"type": "string"},
                "payment_id": {"type": "string"},
                "signature": {"type": "string"}
            },
            "required": ["student_id", "payment_id"]
        },
        "GenerateExportRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["payments", "defaulters", "fee_statuses"]},
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "class_id": {"type": "string"},
                "date_from": {"type": "string"},
                "date_to": {"type": "string"}
            },
            "required": ["type", "format"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
