package classifier

import "github.com/santhosh-tekuri/jsonschema/v5"

// predictionSchema rejects malformed inference responses at the boundary.
// Anything the schema passes can be consumed without nil/NaN guards
// downstream.
const predictionSchema = `{
  "type": "object",
  "required": ["success", "signals"],
  "properties": {
    "success": {"type": "boolean"},
    "model_version": {"type": "string"},
    "signals": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["symbol", "action", "confidence"],
        "properties": {
          "symbol": {"type": "string", "minLength": 1},
          "action": {"enum": ["buy", "sell", "hold"]},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "price": {"type": ["number", "null"]},
          "reasoning": {"type": "string"},
          "probabilities": {
            "type": ["object", "null"],
            "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("predict-response.json", predictionSchema)
