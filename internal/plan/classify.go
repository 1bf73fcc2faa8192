package plan

import "strings"

// moneyMoveMarkers are checked before trade markers: "send 500 to savings"
// must classify as a transfer even when investment words appear later.
var moneyMoveMarkers = []string{"transfer", "wire", "send money", "move money", "send $", "pay "}

var tradeMarkers = []string{"buy", "sell", "trade", "invest"}

var financeMarkers = []string{"spending", "expenses", "budget", "finance report", "financial report", "how much did i spend"}

// moveContextMarkers disambiguate a bare "move": moving a dollar figure or
// moving between accounts is a transfer, moving a meeting is not.
var moveContextMarkers = []string{"$", "savings", "checking", "account"}

// Classify derives the intent from the raw request text. It runs at
// ingress; downstream components treat the resulting Intent as opaque.
func Classify(text string) Intent {
	t := strings.ToLower(text)
	for _, m := range moneyMoveMarkers {
		if strings.Contains(t, m) {
			return IntentMoneyMove
		}
	}
	if strings.Contains(t, "move") {
		for _, m := range moveContextMarkers {
			if strings.Contains(t, m) {
				return IntentMoneyMove
			}
		}
	}
	for _, m := range tradeMarkers {
		if strings.Contains(t, m) {
			return IntentInvestingTrade
		}
	}
	for _, m := range financeMarkers {
		if strings.Contains(t, m) {
			return IntentFinanceReport
		}
	}
	return IntentGeneric
}
