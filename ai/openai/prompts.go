package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/docflow/ai"
)

const extractionResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "raw_content": {
      "type": "string"
    },
    "products": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "content": {"type": "string"},
          "attributes": {"type": "object"}
        },
        "required": ["name"],
        "additionalProperties": false
      }
    },
    "services": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "content": {"type": "string"},
          "attributes": {"type": "object"}
        },
        "required": ["name"],
        "additionalProperties": false
      }
    },
    "error": {
      "type": "string",
      "enum": ["unsupported_content", "unreachable_source", "malformed_document"]
    },
    "error_description": {"type": "string"},
    "language": {"type": "string"},
    "confidence": {"type": "number"}
  },
  "required": ["raw_content", "products", "services"],
  "additionalProperties": false
}`

const extractionPromptTemplate = `Retrieve the document at the given URL and extract the business catalog it describes, returning the result as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- "raw_content" is the full extracted text of the document.
- Extract only the categories requested: %s. Leave the other arrays empty.
- "content" is a self-contained passage describing the item, suitable for semantic embedding. Prefer the document's own wording.
- "attributes" holds %s fields found in the document (pricing, dimensions, availability); use the document's terminology for keys. Omit attributes you did not find. Do not hallucinate.
- If the document cannot be retrieved, set "error" to "unreachable_source" and leave the arrays empty.
- If the content type cannot be parsed (binary, image-only, encrypted), set "error" to "unsupported_content".
- If the document is readable but not a coherent document, set "error" to "malformed_document".
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.`

// buildExtractionPrompt builds the system prompt for document extraction.
func buildExtractionPrompt(industry string, categories []string) string {
	attrContext := "industry-specific"
	if industry != "" {
		attrContext = industry + "-specific"
	}
	return fmt.Sprintf(extractionPromptTemplate,
		extractionResponseSchema,
		strings.Join(categories, ", "),
		attrContext)
}

// buildDocumentMessage builds the user message carrying the document
// reference and the caller-supplied context.
func buildDocumentMessage(req ai.ExtractionRequest) string {
	var b strings.Builder
	b.WriteString("Document URL: ")
	b.WriteString(req.SourceURL)
	if req.Industry != "" {
		b.WriteString("\nIndustry: ")
		b.WriteString(req.Industry)
	}
	for key, value := range req.FileMetadata {
		b.WriteString("\n")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}
