// Package bots seeds the built-in bot accounts and answers the direct
// messages sent to them.
package bots

import "kiselgram-backend/internal/models"

const (
	WeatherBot    = "weather_bot"
	NewsBot       = "news_bot"
	CalculatorBot = "calc_bot"
	HelpBot       = "kiselgram_bot"
)

// Builtin lists the bots created at startup.
var Builtin = []models.Bot{
	{Name: WeatherBot, Description: "Get weather information"},
	{Name: NewsBot, Description: "Latest news headlines"},
	{Name: CalculatorBot, Description: "Mathematical calculations"},
	{Name: HelpBot, Description: "Official help"},
}

const (
	weatherReply     = "Will be soon! Ask Ilya for the weather!"
	newsReply        = "📰 Breaking: Kiselgram now supports media sending! Stay tuned for more updates and also subscribe to our telegram channel: t.me/KiseIgram"
	calculatorFailed = "❌ I can only do simple math calculations. Try something like '2+2' or '5*3'."
	helpReply        = "🤖 Welcome to Kiselgram Help! I can assist you with using groups, channels, and other features. What do you need help with?"
	defaultReply     = "🤖 I'm a bot. How can I help you?"
)

// Reply picks the answer of bot botName to a message.
func Reply(botName string, content string) string {
	switch botName {
	case WeatherBot:
		return weatherReply
	case NewsBot:
		return newsReply
	case CalculatorBot:
		result, err := Evaluate(content)
		if err != nil {
			return calculatorFailed
		}
		return "🧮 Result: " + result
	case HelpBot:
		return helpReply
	default:
		return defaultReply
	}
}
