package memory

import "strings"

// Topics, in the order they are matched against a message.
const (
	TopicGPS         = "gps"
	TopicBattery     = "battery"
	TopicAltitude    = "altitude"
	TopicVibration   = "vibration"
	TopicSafety      = "safety"
	TopicPerformance = "performance"
	TopicAnomalies   = "anomalies"
	TopicTechnical   = "technical"
	TopicGeneral     = "general"
)

var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{TopicGPS, []string{"gps", "signal", "satellite", "location"}},
	{TopicBattery, []string{"battery", "voltage", "power", "charge"}},
	{TopicAltitude, []string{"altitude", "height", "elevation", "drop"}},
	{TopicVibration, []string{"vibration", "shake", "oscillation"}},
	{TopicSafety, []string{"safety", "danger", "risk", "concern"}},
	{TopicPerformance, []string{"performance", "efficiency", "optimize"}},
	{TopicAnomalies, []string{"anomaly", "error", "issue", "problem"}},
	{TopicTechnical, []string{"technical", "detail", "data", "metric"}},
}

// Sentiments.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

var (
	positiveWords = []string{"good", "great", "excellent", "perfect", "amazing", "thanks"}
	negativeWords = []string{"bad", "terrible", "awful", "concerned", "worried", "problem"}
)

// AnalyzeTopic returns the first topic whose keywords occur in message,
// or TopicGeneral. Matching is case-insensitive substring matching.
func AnalyzeTopic(message string) string {
	lower := strings.ToLower(message)
	for _, tk := range topicKeywords {
		if containsAny(lower, tk.keywords) {
			return tk.topic
		}
	}
	return TopicGeneral
}

// AnalyzeSentiment compares the number of positive and negative keywords
// present in message.
func AnalyzeSentiment(message string) string {
	lower := strings.ToLower(message)
	pos, neg := countPresent(lower, positiveWords), countPresent(lower, negativeWords)
	switch {
	case pos > neg:
		return SentimentPositive
	case neg > pos:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func containsAny(s string, words []string) bool {
	return countPresent(s, words) > 0
}

func countPresent(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}
