package conversation

import (
	"fmt"
	"strings"
)

// FieldType is the JSON type of a response field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
)

// SchemaField describes one property of the structured response.
type SchemaField struct {
	Name        string
	Type        FieldType
	Description string
	Enum        []string
	Required    bool
}

// ResponseSchema is a provider-neutral description of a flat JSON object.
type ResponseSchema struct {
	Fields []SchemaField
}

// Required lists the names of required fields.
func (s *ResponseSchema) Required() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Instructions renders the schema as text for providers without native
// structured output.
func (s *ResponseSchema) Instructions() string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else. Fields:\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.Type)
		if f.Required {
			b.WriteString(", required")
		}
		b.WriteString(")")
		if len(f.Enum) > 0 {
			fmt.Fprintf(&b, " one of: %s", strings.Join(f.Enum, ", "))
		}
		if f.Description != "" {
			b.WriteString(": " + f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

var decisionSchema = &ResponseSchema{Fields: []SchemaField{
	{Name: "action", Type: FieldString, Enum: actionNames(), Required: true},
	{Name: "name", Type: FieldString, Description: "customer name", Required: true},
	{Name: "booking_id", Type: FieldString, Description: "existing booking id, only when confirming an update or cancellation"},
	{Name: "start_date", Type: FieldString, Description: "DD/MM/YYYY", Required: true},
	{Name: "start_time", Type: FieldString, Description: "HH:mm, 24-hour", Required: true},
	{Name: "end_date", Type: FieldString, Description: "DD/MM/YYYY", Required: true},
	{Name: "end_time", Type: FieldString, Description: "HH:mm, 24-hour", Required: true},
	{Name: "num_guests", Type: FieldInteger, Required: true},
	{Name: "special_requests", Type: FieldString, Required: true},
	{Name: "booking_title", Type: FieldString, Required: true},
	{Name: "table_id", Type: FieldString, Description: "id from Restaurant Tables", Required: true},
	{Name: "message", Type: FieldString, Description: "reply to send to the customer", Required: true},
}}
