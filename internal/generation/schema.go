package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/MarcoPoloResearchLab/plantrip/internal/itinerary"
)

const toolName = "create_itinerary"

// itineraryToolSchema is the tool definition the model must call. Its shape
// matches itinerary.Candidate.
var itineraryToolSchema = json.RawMessage(`{
  "name": "create_itinerary",
  "description": "Create a complete trip itinerary with stops, activities, and movements between stops.",
  "input_schema": {
    "type": "object",
    "required": ["stops"],
    "properties": {
      "stops": {
        "type": "array",
        "description": "Ordered list of stops (cities/places) to visit",
        "items": {
          "type": "object",
          "required": ["name", "lng", "lat", "nights"],
          "properties": {
            "name": {"type": "string", "description": "City or place name"},
            "lng": {"type": "number", "description": "Longitude (-180 to 180)"},
            "lat": {"type": "number", "description": "Latitude (-90 to 90)"},
            "nights": {"type": "integer", "minimum": 1, "description": "Number of nights to stay"},
            "notes": {"type": "string", "description": "Brief description of the stop"},
            "price_per_night": {"type": "number", "description": "Estimated accommodation cost per night in trip currency"},
            "activities": {
              "type": "array",
              "description": "Activities at this stop",
              "items": {
                "type": "object",
                "required": ["title", "day_offset"],
                "properties": {
                  "title": {"type": "string", "description": "Activity name"},
                  "day_offset": {"type": "integer", "minimum": 0, "description": "Day offset from arrival at this stop (0 = first day)"},
                  "start_time": {"type": "string", "description": "Start time in HH:MM format (24h)"},
                  "duration_minutes": {"type": "integer", "description": "Duration in minutes"},
                  "lng": {"type": "number", "description": "Longitude of the activity location"},
                  "lat": {"type": "number", "description": "Latitude of the activity location"},
                  "address": {"type": "string", "description": "Street address"},
                  "notes": {"type": "string", "description": "Tips or notes about the activity"},
                  "category": {
                    "type": "string",
                    "enum": ["sightseeing", "food", "museum", "outdoors", "shopping", "nightlife", "culture", "relaxation", "adventure", "transport"],
                    "description": "Activity category"
                  },
                  "price": {"type": "number", "description": "Estimated cost in trip currency"}
                }
              }
            }
          }
        }
      },
      "movements": {
        "type": "array",
        "description": "Transport between stops",
        "items": {
          "type": "object",
          "required": ["from_stop_index", "to_stop_index", "type"],
          "properties": {
            "from_stop_index": {"type": "integer", "description": "Index of departure stop in the stops array"},
            "to_stop_index": {"type": "integer", "description": "Index of arrival stop in the stops array"},
            "type": {
              "type": "string",
              "enum": ["train", "bus", "flight", "car", "ferry", "walk"],
              "description": "Transport type"
            },
            "duration_minutes": {"type": "integer", "description": "Travel duration in minutes"},
            "carrier": {"type": "string", "description": "Transport company or service name"},
            "notes": {"type": "string", "description": "Booking tips or notes"},
            "price": {"type": "number", "description": "Estimated cost in trip currency"}
          }
        }
      }
    }
  }
}`)

type toolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	} `json:"input_schema"`
}

// itineraryTool converts itineraryToolSchema into the SDK tool parameter. The
// schema is a literal, so a decode failure is a programming error.
func itineraryTool() anthropic.ToolParam {
	var definition toolDefinition
	if err := json.Unmarshal(itineraryToolSchema, &definition); err != nil {
		panic(fmt.Sprintf("generation: invalid tool schema: %v", err))
	}
	return anthropic.ToolParam{
		Name:        definition.Name,
		Description: anthropic.String(definition.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: definition.InputSchema.Properties,
			Required:   definition.InputSchema.Required,
		},
	}
}

func systemPrompt(request itinerary.GenerationRequest) string {
	var builder strings.Builder
	builder.WriteString("You are a travel planning assistant. Create a detailed trip itinerary.\n\n")
	builder.WriteString("Trip details:\n")
	if request.TripName != "" {
		fmt.Fprintf(&builder, "- Name: %s\n", request.TripName)
	}
	fmt.Fprintf(&builder, "- Country: %s\n", request.CountryCode)
	fmt.Fprintf(&builder, "- Start date: %s\n", request.StartDate.Format("2006-01-02"))
	fmt.Fprintf(&builder, "- Currency: %s\n\n", request.Currency)
	builder.WriteString("Guidelines:\n")
	builder.WriteString("- Use accurate real-world coordinates (longitude, latitude) for all stops and activities\n")
	fmt.Fprintf(&builder, "- Provide realistic prices and durations in %s\n", request.Currency)
	builder.WriteString("- Plan 2-4 activities per day\n")
	builder.WriteString("- Include a mix of activity categories (sightseeing, food, museum, culture, etc.)\n")
	builder.WriteString("- Add transport movements between consecutive stops\n")
	builder.WriteString("- Set appropriate number of nights for each stop based on the number of activities\n")
	fmt.Fprintf(&builder, "- You MUST call the %s tool with your response\n", toolName)
	return builder.String()
}
