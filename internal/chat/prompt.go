package chat

import (
	"fmt"
	"strings"

	"github.com/jxucoder/uavlog/pkg/model"
)

const basePrompt = `You are an expert UAV flight data analyst with advanced memory capabilities. You help users understand flight telemetry data, identify issues, and provide insights about drone flights.

You can analyze:
- GPS coordinates and flight paths
- Altitude and speed data
- Battery performance
- Vibration levels
- Flight anomalies
- Safety concerns

IMPORTANT: You have conversation memory and should:
1. Reference previous discussions when relevant
2. Build upon earlier analyses
3. Avoid repeating information already covered
4. Provide progressive insights that deepen understanding
5. Be proactive in suggesting related topics

Provide clear, technical answers while being accessible to users.`

// SystemPrompt builds the analyst prompt with the conversation history and
// the current flight's statistics, when present.
func SystemPrompt(flight *model.Flight, history string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if history != "" {
		fmt.Fprintf(&b, "\nConversation History:\n%s", history)
	}

	if flight != nil {
		s := flight.Summary
		fmt.Fprintf(&b, `
Current Flight Data:
- Duration: %s seconds
- Max Altitude: %s meters
- Max Speed: %s m/s
- Distance: %s meters
- GPS Points: %d
- Battery Data Points: %d
- Detected Anomalies: %s

Use this data to answer questions about the flight.`,
			num(s.Duration), num(s.MaxAltitude), num(s.MaxSpeed), num(s.TotalDistance),
			len(flight.Telemetry.GPS), len(flight.Telemetry.Battery),
			joinOr(s.Anomalies, "None"))
	}
	return b.String()
}

const noFlightFallback = "I'm ready to analyze flight data! Please upload a .bin file first, then I can answer questions about the flight telemetry."

// FallbackResponse answers without an LLM, from the flight summary alone.
func FallbackResponse(flight *model.Flight) string {
	if flight == nil {
		return noFlightFallback
	}
	s := flight.Summary
	return fmt.Sprintf(`I can see you're asking about flight data. Here's what I found:

Flight Summary:
- Duration: %s seconds
- Max Altitude: %s meters
- Anomalies: %s

To get more detailed AI analysis, please set up your OpenAI, Anthropic or Google API key in the environment variables.`,
		num(s.Duration), num(s.MaxAltitude), joinOr(s.Anomalies, "None detected"))
}

func num(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
